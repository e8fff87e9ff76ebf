package router

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"bugbot/backend/config"
	"bugbot/backend/internal/api/handler"
	"bugbot/backend/internal/api/middleware"
	"bugbot/backend/pkg/jwt"
	"bugbot/backend/pkg/redis"
)

// Setup 初始化并返回 Gin 路由引擎
func Setup(cfg *config.Config, h *handler.Handler, jwtMgr *jwt.Manager, rdb *redis.Client, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// ── 全局中间件 ──
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CORS(cfg.Server.CORS.AllowOrigins))

	// ── 健康检查 ──
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// ── API v1 ──
	v1 := r.Group("/api/v1")
	{
		// 认证模块（无需认证）
		auth := v1.Group("/auth")
		{
			auth.POST("/login", h.Auth.Login)
			auth.POST("/refresh", h.Auth.RefreshToken)
		}

		// 需要认证的路由
		authorized := v1.Group("")
		authorized.Use(middleware.JWTAuth(jwtMgr, rdb))
		{
			authorized.POST("/auth/logout", h.Auth.Logout)

			// 团队模块
			teams := authorized.Group("/teams")
			{
				teams.GET("", h.Team.ListTeams)
				teams.GET("/:id", h.Team.GetTeam)
				teams.POST("", middleware.RoleAuth("admin"), h.Team.CreateTeam)
				teams.PUT("/:id", middleware.RoleAuth("admin", "operator"), h.Team.UpdateTeam)
				teams.DELETE("/:id", middleware.RoleAuth("admin"), h.Team.DeactivateTeam)

				// 成员
				teams.GET("/:id/members", h.Team.ListMembers)
				teams.POST("/:id/members", middleware.RoleAuth("admin", "operator"), h.Team.AddMember)
				teams.PUT("/:id/members/:engineer_id", middleware.RoleAuth("admin", "operator"), h.Team.UpdateMember)
				teams.DELETE("/:id/members/:engineer_id", middleware.RoleAuth("admin", "operator"), h.Team.RemoveMember)

				// 值班解析与排班
				teams.GET("/:id/oncall/current", h.Oncall.GetCurrentOncall)
				teams.GET("/:id/schedules", h.Oncall.ListSchedules)
				teams.GET("/:id/overrides", h.Oncall.ListOverrides)
				teams.GET("/:id/history", h.Oncall.ListHistory)

				// 轮换
				teams.GET("/:id/rotation/preview", h.Oncall.PreviewRotation)
				teams.POST("/:id/rotation/generate", middleware.RoleAuth("admin", "operator"), h.Oncall.GenerateSchedules)
				teams.POST("/:id/rotation/trigger", middleware.RoleAuth("admin", "operator"), h.Oncall.TriggerRotation)

				// 导出
				teams.GET("/:id/export/excel", h.Export.ExportScheduleExcel)
				teams.GET("/:id/export/ics", h.Export.ExportScheduleICS)
			}

			// 排班模块（跨团队入口）
			schedules := authorized.Group("/schedules")
			{
				schedules.POST("", middleware.RoleAuth("admin", "operator"), h.Oncall.AssignOncall)
				schedules.PUT("/:id", middleware.RoleAuth("admin", "operator"), h.Oncall.UpdateSchedule)
				schedules.DELETE("/:id", middleware.RoleAuth("admin", "operator"), h.Oncall.DeleteSchedule)
			}

			// 覆盖模块
			overrides := authorized.Group("/overrides")
			{
				overrides.POST("", h.Oncall.CreateOverride) // 审批策略由角色决定
				overrides.POST("/:id/approve", middleware.RoleAuth("admin", "operator"), h.Oncall.ApproveOverride)
				overrides.POST("/:id/reject", middleware.RoleAuth("admin", "operator"), h.Oncall.RejectOverride)
				overrides.POST("/:id/cancel", middleware.RoleAuth("admin", "operator"), h.Oncall.CancelOverride)
			}

			// 轮换扫描（定时任务的手动入口）
			authorized.POST("/rotation/sweep", middleware.RoleAuth("admin"), h.Oncall.TriggerSweep)

			// 审计日志
			authorized.GET("/audit", middleware.RoleAuth("admin", "operator"), h.Team.ListAudit)
		}
	}

	return r
}
