package dto

import "time"

// CreateTeamRequest 创建团队请求
type CreateTeamRequest struct {
	Name           string `json:"name" binding:"required,max=100"`
	SlackGroupID   string `json:"slack_group_id" binding:"required,max=30"`
	SlackChannelID string `json:"slack_channel_id,omitempty" binding:"max=20"`
	OncallEngineer string `json:"oncall_engineer,omitempty" binding:"max=20"`
}

// UpdateTeamRequest 更新团队请求（指针字段表示部分更新）
type UpdateTeamRequest struct {
	Name              *string    `json:"name,omitempty"`
	SlackChannelID    *string    `json:"slack_channel_id,omitempty"`
	OncallEngineer    *string    `json:"oncall_engineer,omitempty"`
	RotationEnabled   *bool      `json:"rotation_enabled,omitempty"`
	RotationType      *string    `json:"rotation_type,omitempty" binding:"omitempty,oneof=round_robin custom_order weighted none"`
	RotationOrder     []string   `json:"rotation_order,omitempty"`
	RotationStartDate *time.Time `json:"rotation_start_date,omitempty" time_format:"2006-01-02"`
	RotationInterval  *string    `json:"rotation_interval,omitempty" binding:"omitempty,oneof=daily weekly biweekly"`
	HandoffDay        *int       `json:"handoff_day,omitempty" binding:"omitempty,gte=0,lte=6"`
}

// MembershipRequest 添加/更新团队成员请求
type MembershipRequest struct {
	EngineerSlackID     string   `json:"engineer_slack_id" binding:"required,max=20"`
	Role                string   `json:"role,omitempty" binding:"omitempty,oneof=lead member"`
	IsEligibleForOncall *bool    `json:"is_eligible_for_oncall,omitempty"`
	Weight              *float64 `json:"weight,omitempty" binding:"omitempty,gt=0"`
}
