package model

// 后台用户角色取值
const (
	UserRoleAdmin    = "admin"
	UserRoleOperator = "operator"
	UserRoleViewer   = "viewer"
)

// User 后台用户表 — 对应 users
// 管理后台的登录身份，与 Slack 工程师身份（engineer_slack_id）解耦。
type User struct {
	UserID       string `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"user_id"`
	Username     string `gorm:"type:varchar(50);not null;uniqueIndex"          json:"username"`
	PasswordHash string `gorm:"type:varchar(100);not null"                     json:"-"`
	Role         string `gorm:"type:varchar(20);not null;default:'viewer'"     json:"role"` // admin | operator | viewer
	SlackUserID  string `gorm:"type:varchar(20)"                               json:"slack_user_id,omitempty"`
	IsActive     bool   `gorm:"not null;default:true"                          json:"is_active"`
	BaseModel
}

func (User) TableName() string { return "users" }
