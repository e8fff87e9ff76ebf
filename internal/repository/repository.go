package repository

import (
	"context"

	"gorm.io/gorm"
)

// Repository 所有 Repository 的聚合入口
type Repository struct {
	db *gorm.DB

	User       UserRepository
	Team       TeamRepository
	Membership TeamMembershipRepository
	Schedule   ScheduleRepository
	Override   OverrideRepository
	History    HistoryRepository
	Audit      AuditRepository
}

// NewRepository 创建 Repository 聚合
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		db:         db,
		User:       NewUserRepo(db),
		Team:       NewTeamRepo(db),
		Membership: NewTeamMembershipRepo(db),
		Schedule:   NewScheduleRepo(db),
		Override:   NewOverrideRepo(db),
		History:    NewHistoryRepo(db),
		Audit:      NewAuditRepo(db),
	}
}

// Transaction 在单个数据库事务中执行 fn
// fn 内通过事务绑定的聚合访问数据；fn 返回错误时整体回滚。
// 内存实现（测试 mock）可不带 db，此时直接执行 fn。
func (r *Repository) Transaction(ctx context.Context, fn func(txRepo *Repository) error) error {
	if r.db == nil {
		return fn(r)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepository(tx))
	})
}
