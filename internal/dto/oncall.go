package dto

import (
	"time"

	"bugbot/backend/internal/rotation"
)

// AssignOncallRequest 创建排班请求
type AssignOncallRequest struct {
	TeamID          string    `json:"team_id" binding:"required"`
	EngineerSlackID string    `json:"engineer_slack_id" binding:"required"`
	StartDate       time.Time `json:"start_date" binding:"required" time_format:"2006-01-02"`
	EndDate         time.Time `json:"end_date" binding:"required" time_format:"2006-01-02"`
	ScheduleType    string    `json:"schedule_type" binding:"required,oneof=weekly daily"`
	DaysOfWeek      []int     `json:"days_of_week,omitempty" binding:"omitempty,dive,gte=0,lte=6"`
}

// UpdateScheduleRequest 调整排班请求（仅允许修改的字段）
type UpdateScheduleRequest struct {
	EngineerSlackID *string    `json:"engineer_slack_id,omitempty"`
	StartDate       *time.Time `json:"start_date,omitempty" time_format:"2006-01-02"`
	EndDate         *time.Time `json:"end_date,omitempty" time_format:"2006-01-02"`
	DaysOfWeek      []int      `json:"days_of_week,omitempty" binding:"omitempty,dive,gte=0,lte=6"`
}

// CurrentOncallResponse 当前值班人解析结果
type CurrentOncallResponse struct {
	TeamID          string    `json:"team_id"`
	EngineerSlackID string    `json:"engineer_slack_id"`
	EngineerName    string    `json:"engineer_name,omitempty"` // 目录解析的展示名（尽力而为）
	Source          string    `json:"source"`                  // override | schedule | rotation | manual
	EffectiveDate   time.Time `json:"effective_date"`
	ScheduleID      string    `json:"schedule_id,omitempty"`
}

// CreateOverrideRequest 创建覆盖请求
type CreateOverrideRequest struct {
	TeamID            string     `json:"team_id" binding:"required"`
	OverrideDate      time.Time  `json:"override_date" binding:"required" time_format:"2006-01-02"`
	EndDate           *time.Time `json:"end_date,omitempty" time_format:"2006-01-02"` // 缺省为单日
	SubstituteSlackID string     `json:"substitute_slack_id" binding:"required"`
	OriginalSlackID   string     `json:"original_slack_id,omitempty"` // 缺省时从当前值班人快照
	Reason            string     `json:"reason,omitempty" binding:"max=500"`
}

// RotationPreviewResponse 轮换预测结果
type RotationPreviewResponse struct {
	TeamID  string            `json:"team_id"`
	Periods []rotation.Period `json:"periods"`
}

// SweepSummary 全团队轮换扫描汇总
type SweepSummary struct {
	Processed int `json:"processed"`
	Rotated   int `json:"rotated"`
	Skipped   int `json:"skipped"`
	Errors    int `json:"errors"`
}
