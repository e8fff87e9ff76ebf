package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"bugbot/backend/internal/dto"
	"bugbot/backend/internal/service"
	"bugbot/backend/pkg/response"
)

// TeamHandler 团队模块 HTTP 处理器
type TeamHandler struct {
	teamSvc service.TeamService
}

// NewTeamHandler 创建 TeamHandler
func NewTeamHandler(teamSvc service.TeamService) *TeamHandler {
	return &TeamHandler{teamSvc: teamSvc}
}

// ListTeams 获取团队列表
// GET /api/v1/teams?include_inactive=true
func (h *TeamHandler) ListTeams(c *gin.Context) {
	includeInactive := c.Query("include_inactive") == "true"

	teams, err := h.teamSvc.ListTeams(c.Request.Context(), includeInactive)
	if err != nil {
		response.InternalError(c)
		return
	}

	response.OK(c, gin.H{"list": teams})
}

// GetTeam 获取团队详情
// GET /api/v1/teams/:id
func (h *TeamHandler) GetTeam(c *gin.Context) {
	team, err := h.teamSvc.GetTeam(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleTeamError(c, err)
		return
	}

	response.OK(c, team)
}

// CreateTeam 创建团队
// POST /api/v1/teams
func (h *TeamHandler) CreateTeam(c *gin.Context) {
	var req dto.CreateTeamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	team, err := h.teamSvc.CreateTeam(c.Request.Context(), &req, callerID)
	if err != nil {
		h.handleTeamError(c, err)
		return
	}

	response.Created(c, team)
}

// UpdateTeam 更新团队（含轮换配置）
// PUT /api/v1/teams/:id
func (h *TeamHandler) UpdateTeam(c *gin.Context) {
	var req dto.UpdateTeamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	team, err := h.teamSvc.UpdateTeam(c.Request.Context(), c.Param("id"), &req, callerID)
	if err != nil {
		h.handleTeamError(c, err)
		return
	}

	response.OK(c, team)
}

// DeactivateTeam 停用团队（软删除）
// DELETE /api/v1/teams/:id
func (h *TeamHandler) DeactivateTeam(c *gin.Context) {
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	if err := h.teamSvc.DeactivateTeam(c.Request.Context(), c.Param("id"), callerID); err != nil {
		h.handleTeamError(c, err)
		return
	}

	response.OK(c, nil)
}

// ListMembers 获取团队成员列表
// GET /api/v1/teams/:id/members
func (h *TeamHandler) ListMembers(c *gin.Context) {
	members, err := h.teamSvc.ListMembers(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleTeamError(c, err)
		return
	}

	response.OK(c, gin.H{"list": members})
}

// AddMember 添加团队成员
// POST /api/v1/teams/:id/members
func (h *TeamHandler) AddMember(c *gin.Context) {
	var req dto.MembershipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	m, err := h.teamSvc.AddMember(c.Request.Context(), c.Param("id"), &req, callerID)
	if err != nil {
		h.handleTeamError(c, err)
		return
	}

	response.Created(c, m)
}

// UpdateMember 更新团队成员（角色/资格/权重）
// PUT /api/v1/teams/:id/members/:engineer_id
func (h *TeamHandler) UpdateMember(c *gin.Context) {
	var req dto.MembershipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}
	// 路径参数优先于请求体
	req.EngineerSlackID = c.Param("engineer_id")

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	m, err := h.teamSvc.UpdateMember(c.Request.Context(), c.Param("id"), c.Param("engineer_id"), &req, callerID)
	if err != nil {
		h.handleTeamError(c, err)
		return
	}

	response.OK(c, m)
}

// RemoveMember 移除团队成员
// DELETE /api/v1/teams/:id/members/:engineer_id
func (h *TeamHandler) RemoveMember(c *gin.Context) {
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	if err := h.teamSvc.RemoveMember(c.Request.Context(), c.Param("id"), c.Param("engineer_id"), callerID); err != nil {
		h.handleTeamError(c, err)
		return
	}

	response.OK(c, nil)
}

// ListAudit 查询审计日志
// GET /api/v1/audit?entity_type=team&entity_id=xxx
func (h *TeamHandler) ListAudit(c *gin.Context) {
	entityType := c.Query("entity_type")
	entityID := c.Query("entity_id")
	if entityType == "" || entityID == "" {
		response.BadRequest(c, 10001, "entity_type 与 entity_id 不能为空")
		return
	}

	page, pageSize := queryPage(c)
	logs, total, err := h.teamSvc.ListAudit(c.Request.Context(), entityType, entityID, (page-1)*pageSize, pageSize)
	if err != nil {
		response.InternalError(c)
		return
	}

	response.OKPage(c, logs, total, page, pageSize)
}

func (h *TeamHandler) handleTeamError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrTeamNotFound):
		response.NotFound(c, 12001, "团队不存在")
	case errors.Is(err, service.ErrTeamExists):
		response.Conflict(c, 12002, "该 Slack 用户组已绑定团队")
	case errors.Is(err, service.ErrMembershipNotFound):
		response.NotFound(c, 12003, "团队成员不存在")
	case errors.Is(err, service.ErrMembershipExists):
		response.Conflict(c, 12004, "该工程师已是团队成员")
	default:
		response.InternalError(c)
	}
}
