package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"bugbot/backend/internal/dto"
	"bugbot/backend/internal/model"
	"bugbot/backend/internal/service"
	"bugbot/backend/pkg/response"
)

// OncallHandler 值班模块 HTTP 处理器
type OncallHandler struct {
	oncallSvc service.OncallService
}

// NewOncallHandler 创建 OncallHandler
func NewOncallHandler(oncallSvc service.OncallService) *OncallHandler {
	return &OncallHandler{oncallSvc: oncallSvc}
}

// GetCurrentOncall 解析当前值班人
// GET /api/v1/teams/:id/oncall/current?date=2026-03-09
func (h *OncallHandler) GetCurrentOncall(c *gin.Context) {
	date, ok := queryDate(c, "date")
	if !ok {
		return
	}

	cur, err := h.oncallSvc.ResolveCurrentOnCall(c.Request.Context(), c.Param("id"), date)
	if err != nil {
		h.handleOncallError(c, err)
		return
	}

	response.OK(c, cur)
}

// ── 排班 ──

// ListSchedules 查询团队排班
// GET /api/v1/teams/:id/schedules?from=...&to=...
func (h *OncallHandler) ListSchedules(c *gin.Context) {
	from, ok := queryDate(c, "from")
	if !ok {
		return
	}
	to, ok := queryDate(c, "to")
	if !ok {
		return
	}

	schedules, err := h.oncallSvc.ListSchedules(c.Request.Context(), c.Param("id"), from, to)
	if err != nil {
		h.handleOncallError(c, err)
		return
	}

	response.OK(c, gin.H{"list": schedules})
}

// AssignOncall 创建排班
// POST /api/v1/schedules
func (h *OncallHandler) AssignOncall(c *gin.Context) {
	var req dto.AssignOncallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	schedule, err := h.oncallSvc.AssignOncall(c.Request.Context(), &req, callerID)
	if err != nil {
		h.handleOncallError(c, err)
		return
	}

	response.Created(c, schedule)
}

// UpdateSchedule 调整排班
// PUT /api/v1/schedules/:id
func (h *OncallHandler) UpdateSchedule(c *gin.Context) {
	var req dto.UpdateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	schedule, err := h.oncallSvc.UpdateSchedule(c.Request.Context(), c.Param("id"), &req, callerID)
	if err != nil {
		h.handleOncallError(c, err)
		return
	}

	response.OK(c, schedule)
}

// DeleteSchedule 删除排班
// DELETE /api/v1/schedules/:id
func (h *OncallHandler) DeleteSchedule(c *gin.Context) {
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	if err := h.oncallSvc.DeleteSchedule(c.Request.Context(), c.Param("id"), callerID); err != nil {
		h.handleOncallError(c, err)
		return
	}

	response.OK(c, nil)
}

// ── 覆盖 ──

// CreateOverride 创建覆盖申请
// POST /api/v1/overrides
// admin/operator 创建即批准，viewer 创建后待审批。
func (h *OncallHandler) CreateOverride(c *gin.Context) {
	var req dto.CreateOverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}
	role, ok := MustGetRole(c)
	if !ok {
		return
	}
	autoApprove := role == model.UserRoleAdmin || role == model.UserRoleOperator

	override, err := h.oncallSvc.CreateOverride(c.Request.Context(), &req, callerID, autoApprove)
	if err != nil {
		h.handleOncallError(c, err)
		return
	}

	response.Created(c, override)
}

// ListOverrides 查询覆盖申请
// GET /api/v1/teams/:id/overrides?status=pending
func (h *OncallHandler) ListOverrides(c *gin.Context) {
	page, pageSize := queryPage(c)

	overrides, total, err := h.oncallSvc.ListOverrides(c.Request.Context(),
		c.Param("id"), c.Query("status"), (page-1)*pageSize, pageSize)
	if err != nil {
		h.handleOncallError(c, err)
		return
	}

	response.OKPage(c, overrides, total, page, pageSize)
}

// ApproveOverride 批准覆盖申请
// POST /api/v1/overrides/:id/approve
func (h *OncallHandler) ApproveOverride(c *gin.Context) {
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	override, err := h.oncallSvc.ApproveOverride(c.Request.Context(), c.Param("id"), callerID)
	if err != nil {
		h.handleOncallError(c, err)
		return
	}

	response.OK(c, override)
}

// RejectOverride 拒绝覆盖申请
// POST /api/v1/overrides/:id/reject
func (h *OncallHandler) RejectOverride(c *gin.Context) {
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	override, err := h.oncallSvc.RejectOverride(c.Request.Context(), c.Param("id"), callerID)
	if err != nil {
		h.handleOncallError(c, err)
		return
	}

	response.OK(c, override)
}

// CancelOverride 取消已批准的覆盖
// POST /api/v1/overrides/:id/cancel
func (h *OncallHandler) CancelOverride(c *gin.Context) {
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	override, err := h.oncallSvc.CancelOverride(c.Request.Context(), c.Param("id"), callerID)
	if err != nil {
		h.handleOncallError(c, err)
		return
	}

	response.OK(c, override)
}

// ── 轮换 ──

// PreviewRotation 预测轮换排班（只读，无副作用）
// GET /api/v1/teams/:id/rotation/preview?periods=4
func (h *OncallHandler) PreviewRotation(c *gin.Context) {
	periods, _ := strconv.Atoi(c.DefaultQuery("periods", "0"))

	preview, err := h.oncallSvc.PreviewRotation(c.Request.Context(), c.Param("id"), periods)
	if err != nil {
		h.handleOncallError(c, err)
		return
	}

	response.OK(c, preview)
}

// GenerateSchedules 将轮换预测落库为 auto 排班
// POST /api/v1/teams/:id/rotation/generate?periods=4
func (h *OncallHandler) GenerateSchedules(c *gin.Context) {
	periods, _ := strconv.Atoi(c.DefaultQuery("periods", "0"))

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	schedules, err := h.oncallSvc.GenerateSchedules(c.Request.Context(), c.Param("id"), periods, callerID)
	if err != nil {
		h.handleOncallError(c, err)
		return
	}

	response.Created(c, gin.H{"list": schedules})
}

// TriggerRotation 手动触发单团队轮换检查
// POST /api/v1/teams/:id/rotation/trigger
func (h *OncallHandler) TriggerRotation(c *gin.Context) {
	rotated, err := h.oncallSvc.ProcessAutoRotation(c.Request.Context(), c.Param("id"), nil)
	if err != nil {
		h.handleOncallError(c, err)
		return
	}

	response.OK(c, gin.H{"rotated": rotated})
}

// TriggerSweep 手动触发全团队轮换扫描
// POST /api/v1/rotation/sweep
func (h *OncallHandler) TriggerSweep(c *gin.Context) {
	summary, err := h.oncallSvc.TriggerRotationSweep(c.Request.Context())
	if err != nil {
		response.InternalError(c)
		return
	}

	response.OK(c, summary)
}

// ── 历史 ──

// ListHistory 查询值班变更历史
// GET /api/v1/teams/:id/history
func (h *OncallHandler) ListHistory(c *gin.Context) {
	page, pageSize := queryPage(c)

	entries, total, err := h.oncallSvc.ListHistory(c.Request.Context(), c.Param("id"), (page-1)*pageSize, pageSize)
	if err != nil {
		h.handleOncallError(c, err)
		return
	}

	response.OKPage(c, entries, total, page, pageSize)
}

func (h *OncallHandler) handleOncallError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrTeamNotFound):
		response.NotFound(c, 12001, "团队不存在")
	case errors.Is(err, service.ErrScheduleNotFound):
		response.NotFound(c, 13001, "排班不存在")
	case errors.Is(err, service.ErrScheduleOverlap):
		response.Conflict(c, 13002, "排班区间与该团队既有排班重叠")
	case errors.Is(err, service.ErrInvalidDateRange):
		response.BadRequest(c, 13003, "结束日期不能早于开始日期")
	case errors.Is(err, service.ErrDaysOfWeekRequired):
		response.BadRequest(c, 13004, "daily 排班必须指定 days_of_week")
	case errors.Is(err, service.ErrOverrideNotFound):
		response.NotFound(c, 14001, "覆盖申请不存在")
	case errors.Is(err, service.ErrOverrideOverlap):
		response.Conflict(c, 14002, "覆盖区间与既有覆盖申请重叠")
	case errors.Is(err, service.ErrInvalidStatusTransition):
		response.Conflict(c, 14003, "无效的覆盖状态转换")
	case errors.Is(err, service.ErrNoOncallAssigned):
		response.NotFound(c, 15001, "当前无值班安排")
	default:
		response.InternalError(c)
	}
}
