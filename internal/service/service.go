package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"bugbot/backend/config"
	"bugbot/backend/internal/repository"
	"bugbot/backend/pkg/jwt"
	"bugbot/backend/pkg/redis"
)

// DirectoryClient 工程师目录外部协作方（Slack 用户组）
// 只读、尽力而为：调用失败由上层降级处理，不中断核心流程。
type DirectoryClient interface {
	// ListRosterMembers 返回用户组的有序成员 ID 列表
	ListRosterMembers(ctx context.Context, groupID string) ([]string, error)
	// ResolveDisplayName 解析展示名，失败时回退为原始 ID
	ResolveDisplayName(ctx context.Context, slackUserID string) string
}

// NotificationClient 通知外部协作方（Slack DM / 频道消息）
// 所有方法均为尽力而为：失败记录日志，不回滚核心状态。
type NotificationClient interface {
	NotifyAssignment(ctx context.Context, engineerSlackID, teamName string, start, end time.Time, scheduleType string, daysOfWeek []int) error
	NotifyRotation(ctx context.Context, incoming, outgoing, channel string, effectiveDate time.Time) error
	NotifyOverrideDecision(ctx context.Context, requesterSlackID, substituteSlackID, status, reason string) error
}

// TeamLocker 团队级互斥锁（串行化同一团队的轮换写路径）
type TeamLocker interface {
	AcquireTeamLock(ctx context.Context, teamID string, ttl time.Duration) (bool, error)
	ReleaseTeamLock(ctx context.Context, teamID string) error
}

// Service 所有 Service 的聚合入口
type Service struct {
	Auth   AuthService
	Team   TeamService
	Oncall OncallService
	Export ExportService
}

// NewService 创建 Service 聚合
func NewService(cfg *config.Config, repo *repository.Repository, jwtMgr *jwt.Manager, rdb *redis.Client, directory DirectoryClient, notifier NotificationClient, logger *zap.Logger) *Service {
	var locker TeamLocker
	if rdb != nil {
		locker = rdb
	}
	oncall := NewOncallService(repo, directory, notifier, locker, &cfg.Rotation, logger)
	return &Service{
		Auth:   NewAuthService(repo, jwtMgr, rdb, logger),
		Team:   NewTeamService(repo, oncall, logger),
		Oncall: oncall,
		Export: NewExportService(repo, directory, logger),
	}
}
