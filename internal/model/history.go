package model

import (
	"time"

	"gorm.io/datatypes"
)

// 变更类型取值（change_type 列）
const (
	ChangeTypeScheduleCreated  = "schedule_created"
	ChangeTypeScheduleUpdated  = "schedule_updated"
	ChangeTypeScheduleDeleted  = "schedule_deleted"
	ChangeTypeAutoRotation     = "auto_rotation"
	ChangeTypeOverrideCreated  = "override_created"
	ChangeTypeOverrideApproved = "override_approved"
	ChangeTypeOverrideRejected = "override_rejected"
	ChangeTypeOverrideCancelled = "override_cancelled"
)

// OncallHistory 值班变更历史 — 对应 oncall_history（追加写，不可修改）
type OncallHistory struct {
	HistoryID               string    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"history_id"`
	TeamID                  string    `gorm:"type:uuid;not null;index"                       json:"team_id"`
	EngineerSlackID         string    `gorm:"type:varchar(20);not null"                      json:"engineer_slack_id"`
	ChangeType              string    `gorm:"type:varchar(30);not null"                      json:"change_type"`
	EffectiveDate           time.Time `gorm:"type:date;not null"                             json:"effective_date"`
	PreviousEngineerSlackID string    `gorm:"type:varchar(20)"                               json:"previous_engineer_slack_id,omitempty"`
	ChangedBy               string    `gorm:"type:varchar(50)"                               json:"changed_by,omitempty"`
	ChangeReason            string    `gorm:"type:varchar(500)"                              json:"change_reason,omitempty"`
	CreatedAt               time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"             json:"created_at"`
}

func (OncallHistory) TableName() string { return "oncall_history" }

// 审计实体类型取值（entity_type 列）
const (
	AuditEntityTeam       = "team"
	AuditEntityMembership = "membership"
	AuditEntitySchedule   = "schedule"
	AuditEntityOverride   = "override"
)

// AuditLog 结构化审计日志 — 对应 audit_logs
// 与 oncall_history 双写但相互独立：未来移除历史表不影响审计路径。
type AuditLog struct {
	AuditID    string            `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"audit_id"`
	EntityType string            `gorm:"type:varchar(30);not null"                      json:"entity_type"`
	EntityID   string            `gorm:"type:varchar(50);not null"                      json:"entity_id"`
	Action     string            `gorm:"type:varchar(30);not null"                      json:"action"`
	OperatorID string            `gorm:"type:varchar(50)"                               json:"operator_id,omitempty"`
	Diff       datatypes.JSONMap `gorm:"type:jsonb"                                     json:"diff,omitempty"` // {field: {old, new}}
	CreatedAt  time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"             json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }

// FieldDiff 构造单字段的 {old, new} 差异项
func FieldDiff(oldVal, newVal interface{}) map[string]interface{} {
	return map[string]interface{}{"old": oldVal, "new": newVal}
}
