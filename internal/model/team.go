package model

import "time"

// 轮换策略取值（rotation_type 列）
const (
	RotationTypeRoundRobin  = "round_robin"
	RotationTypeCustomOrder = "custom_order"
	RotationTypeWeighted    = "weighted"
	RotationTypeNone        = "none"
)

// 轮换周期取值（rotation_interval 列）
const (
	RotationIntervalDaily    = "daily"
	RotationIntervalWeekly   = "weekly"
	RotationIntervalBiweekly = "biweekly"
)

// Team 团队表 — 对应 teams
// 仅软删除，不做物理删除；轮换配置每次应用轮换时被编排层更新。
type Team struct {
	TeamID               string      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"team_id"`
	Name                 string      `gorm:"type:varchar(100);not null"                     json:"name"`
	SlackGroupID         string      `gorm:"type:varchar(30);not null;uniqueIndex"          json:"slack_group_id"`
	SlackChannelID       string      `gorm:"type:varchar(20)"                               json:"slack_channel_id,omitempty"`
	OncallEngineer       string      `gorm:"type:varchar(20)"                               json:"oncall_engineer,omitempty"` // 手动兜底值班人
	RotationEnabled      bool        `gorm:"not null;default:false"                         json:"rotation_enabled"`
	RotationType         string      `gorm:"type:varchar(20);not null;default:'none'"       json:"rotation_type"` // round_robin | custom_order | weighted | none
	RotationOrder        StringArray `gorm:"type:text[]"                                    json:"rotation_order,omitempty"` // 仅 custom_order 使用
	RotationStartDate    *time.Time  `gorm:"type:date"                                      json:"rotation_start_date,omitempty"`
	RotationInterval     string      `gorm:"type:varchar(10);not null;default:'weekly'"     json:"rotation_interval"` // daily | weekly | biweekly
	HandoffDay           *int        `gorm:"type:smallint"                                  json:"handoff_day,omitempty"` // 0-6（周一=0）
	CurrentRotationIndex *int        `json:"current_rotation_index,omitempty"`                                            // nil 表示从未轮换
	IsActive             bool        `gorm:"not null;default:true"                          json:"is_active"`
	VersionedModel

	// 关联
	Memberships []TeamMembership `gorm:"foreignKey:TeamID;references:TeamID" json:"memberships,omitempty"`
}

func (Team) TableName() string { return "teams" }

// 成员角色取值
const (
	MembershipRoleLead   = "lead"
	MembershipRoleMember = "member"
)

// TeamMembership 团队成员表 — 对应 team_memberships
// (team_id, engineer_slack_id) 唯一；weight 驱动 weighted 策略的公平份额。
type TeamMembership struct {
	MembershipID        string  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"membership_id"`
	TeamID              string  `gorm:"type:uuid;not null;index:uq_team_engineer,unique" json:"team_id"`
	EngineerSlackID     string  `gorm:"type:varchar(20);not null;index:uq_team_engineer,unique" json:"engineer_slack_id"`
	Role                string  `gorm:"type:varchar(20);not null;default:'member'"     json:"role"` // lead | member
	IsEligibleForOncall bool    `gorm:"not null;default:true"                          json:"is_eligible_for_oncall"`
	Weight              float64 `gorm:"not null;default:1.0"                           json:"weight"`
	BaseModel
}

func (TeamMembership) TableName() string { return "team_memberships" }
