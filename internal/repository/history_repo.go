package repository

import (
	"context"

	"gorm.io/gorm"

	"bugbot/backend/internal/model"
)

// HistoryRepository 值班历史数据访问接口（只增不改）
type HistoryRepository interface {
	Append(ctx context.Context, entry *model.OncallHistory) error
	// Latest 返回团队最近一条历史记录（幂等性检查用）
	Latest(ctx context.Context, teamID string) (*model.OncallHistory, error)
	ListByTeam(ctx context.Context, teamID string, offset, limit int) ([]model.OncallHistory, int64, error)
}

// AuditRepository 审计日志数据访问接口（只增不改）
type AuditRepository interface {
	Append(ctx context.Context, entry *model.AuditLog) error
	ListByEntity(ctx context.Context, entityType, entityID string, offset, limit int) ([]model.AuditLog, int64, error)
}

// ── History Repository 实现 ──

type historyRepo struct {
	db *gorm.DB
}

func NewHistoryRepo(db *gorm.DB) HistoryRepository {
	return &historyRepo{db: db}
}

func (r *historyRepo) Append(ctx context.Context, entry *model.OncallHistory) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *historyRepo) Latest(ctx context.Context, teamID string) (*model.OncallHistory, error) {
	var entry model.OncallHistory
	err := r.db.WithContext(ctx).
		Where("team_id = ?", teamID).
		Order("created_at DESC").
		First(&entry).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *historyRepo) ListByTeam(ctx context.Context, teamID string, offset, limit int) ([]model.OncallHistory, int64, error) {
	q := r.db.WithContext(ctx).
		Model(&model.OncallHistory{}).
		Where("team_id = ?", teamID)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var entries []model.OncallHistory
	err := q.Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// ── Audit Repository 实现 ──

type auditRepo struct {
	db *gorm.DB
}

func NewAuditRepo(db *gorm.DB) AuditRepository {
	return &auditRepo{db: db}
}

func (r *auditRepo) Append(ctx context.Context, entry *model.AuditLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *auditRepo) ListByEntity(ctx context.Context, entityType, entityID string, offset, limit int) ([]model.AuditLog, int64, error) {
	q := r.db.WithContext(ctx).
		Model(&model.AuditLog{}).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var entries []model.AuditLog
	err := q.Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}
