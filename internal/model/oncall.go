package model

import "time"

// 排班类型取值（schedule_type 列）
const (
	ScheduleTypeWeekly = "weekly"
	ScheduleTypeDaily  = "daily"
)

// 排班来源取值（origin 列）
const (
	ScheduleOriginManual = "manual"
	ScheduleOriginAuto   = "auto" // 轮换预测生成的可丢弃投影
)

// OncallSchedule 值班排班表 — 对应 oncall_schedules
// [StartDate, EndDate] 为闭区间；同一团队的排班区间不允许重叠。
type OncallSchedule struct {
	ScheduleID      string    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"schedule_id"`
	TeamID          string    `gorm:"type:uuid;not null;index"                       json:"team_id"`
	EngineerSlackID string    `gorm:"type:varchar(20);not null"                      json:"engineer_slack_id"`
	StartDate       time.Time `gorm:"type:date;not null"                             json:"start_date"`
	EndDate         time.Time `gorm:"type:date;not null"                             json:"end_date"`
	ScheduleType    string    `gorm:"type:varchar(10);not null;default:'weekly'"     json:"schedule_type"` // weekly | daily
	DaysOfWeek      IntArray  `gorm:"type:int[]"                                     json:"days_of_week,omitempty"` // 仅 daily 使用（周一=0）
	Origin          string    `gorm:"type:varchar(10);not null;default:'manual'"     json:"origin"` // manual | auto
	CreatedAt       time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"             json:"created_at"`
	CreatedBy       string    `gorm:"type:varchar(50)"                               json:"created_by,omitempty"`
	UpdatedAt       time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"             json:"updated_at"`
	UpdatedBy       string    `gorm:"type:varchar(50)"                               json:"updated_by,omitempty"`
	Version         int       `gorm:"not null;default:1"                             json:"version"`

	// 关联
	Team *Team `gorm:"foreignKey:TeamID;references:TeamID" json:"team,omitempty"`
}

func (OncallSchedule) TableName() string { return "oncall_schedules" }

// Covers 判断排班是否覆盖指定日期
// daily 类型额外要求命中 days_of_week（周一=0）。
func (s *OncallSchedule) Covers(date time.Time) bool {
	d := DateOnly(date)
	if d.Before(DateOnly(s.StartDate)) || d.After(DateOnly(s.EndDate)) {
		return false
	}
	if s.ScheduleType == ScheduleTypeDaily {
		return s.DaysOfWeek.Contains(WeekdayIndex(d))
	}
	return true
}

// 覆盖状态取值（status 列）
// 状态机：pending → {approved, rejected}；approved → {cancelled}；其余转换拒绝。
const (
	OverrideStatusPending   = "pending"
	OverrideStatusApproved  = "approved"
	OverrideStatusRejected  = "rejected"
	OverrideStatusCancelled = "cancelled"
)

// OncallOverride 值班覆盖表 — 对应 oncall_overrides
// EndDate 为空表示单日覆盖；仅 approved 状态参与值班解析。
type OncallOverride struct {
	OverrideID        string     `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"override_id"`
	TeamID            string     `gorm:"type:uuid;not null;index"                       json:"team_id"`
	OverrideDate      time.Time  `gorm:"type:date;not null"                             json:"override_date"`
	EndDate           *time.Time `gorm:"type:date"                                      json:"end_date,omitempty"`
	SubstituteSlackID string     `gorm:"type:varchar(20);not null"                      json:"substitute_slack_id"`
	OriginalSlackID   string     `gorm:"type:varchar(20)"                               json:"original_slack_id,omitempty"` // 创建时快照
	Reason            string     `gorm:"type:varchar(500)"                              json:"reason,omitempty"`
	Status            string     `gorm:"type:varchar(10);not null;default:'pending'"    json:"status"`
	RequestedBy       string     `gorm:"type:varchar(50);not null"                      json:"requested_by"`
	ApprovedBy        string     `gorm:"type:varchar(50)"                               json:"approved_by,omitempty"`
	ApprovedAt        *time.Time `json:"approved_at,omitempty"`
	CreatedAt         time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP"             json:"created_at"`
	UpdatedAt         time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP"             json:"updated_at"`
	Version           int        `gorm:"not null;default:1"                             json:"version"`
}

func (OncallOverride) TableName() string { return "oncall_overrides" }

// EffectiveEnd 覆盖区间的实际结束日（单日覆盖即 OverrideDate）
func (o *OncallOverride) EffectiveEnd() time.Time {
	if o.EndDate != nil {
		return DateOnly(*o.EndDate)
	}
	return DateOnly(o.OverrideDate)
}

// Covers 判断覆盖是否作用于指定日期
func (o *OncallOverride) Covers(date time.Time) bool {
	d := DateOnly(date)
	return !d.Before(DateOnly(o.OverrideDate)) && !d.After(o.EffectiveEnd())
}
