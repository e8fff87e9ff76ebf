package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"bugbot/backend/internal/model"
	pkgerrors "bugbot/backend/pkg/errors"
)

// OverrideRepository 值班覆盖数据访问接口
type OverrideRepository interface {
	Create(ctx context.Context, o *model.OncallOverride) error
	GetByID(ctx context.Context, id string) (*model.OncallOverride, error)
	ListByTeam(ctx context.Context, teamID, status string, offset, limit int) ([]model.OncallOverride, int64, error)
	// GetActive 返回覆盖指定日期的 approved 覆盖；重叠时取最近创建的
	GetActive(ctx context.Context, teamID string, date time.Time) (*model.OncallOverride, error)
	// CheckOverlap 判断区间是否与团队的 pending/approved 覆盖重叠
	CheckOverlap(ctx context.Context, teamID string, start, end time.Time, excludeID string) (bool, error)
	Update(ctx context.Context, o *model.OncallOverride) error
}

// ── Override Repository 实现 ──

type overrideRepo struct {
	db *gorm.DB
}

func NewOverrideRepo(db *gorm.DB) OverrideRepository {
	return &overrideRepo{db: db}
}

func (r *overrideRepo) Create(ctx context.Context, o *model.OncallOverride) error {
	return r.db.WithContext(ctx).Create(o).Error
}

func (r *overrideRepo) GetByID(ctx context.Context, id string) (*model.OncallOverride, error) {
	var o model.OncallOverride
	if err := r.db.WithContext(ctx).Where("override_id = ?", id).First(&o).Error; err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *overrideRepo) ListByTeam(ctx context.Context, teamID, status string, offset, limit int) ([]model.OncallOverride, int64, error) {
	q := r.db.WithContext(ctx).
		Model(&model.OncallOverride{}).
		Where("team_id = ?", teamID)
	if status != "" {
		q = q.Where("status = ?", status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var overrides []model.OncallOverride
	err := q.Order("override_date DESC").
		Offset(offset).Limit(limit).
		Find(&overrides).Error
	if err != nil {
		return nil, 0, err
	}
	return overrides, total, nil
}

func (r *overrideRepo) GetActive(ctx context.Context, teamID string, date time.Time) (*model.OncallOverride, error) {
	d := model.DateOnly(date)
	var o model.OncallOverride
	err := r.db.WithContext(ctx).
		Where("team_id = ? AND status = ?", teamID, model.OverrideStatusApproved).
		Where("(end_date IS NULL AND override_date = ?) OR (end_date IS NOT NULL AND override_date <= ? AND end_date >= ?)", d, d, d).
		Order("created_at DESC").
		First(&o).Error
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *overrideRepo) CheckOverlap(ctx context.Context, teamID string, start, end time.Time, excludeID string) (bool, error) {
	q := r.db.WithContext(ctx).
		Model(&model.OncallOverride{}).
		Where("team_id = ? AND status IN ?", teamID,
			[]string{model.OverrideStatusPending, model.OverrideStatusApproved}).
		Where("override_date <= ? AND COALESCE(end_date, override_date) >= ?",
			model.DateOnly(end), model.DateOnly(start))
	if excludeID != "" {
		q = q.Where("override_id != ?", excludeID)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *overrideRepo) Update(ctx context.Context, o *model.OncallOverride) error {
	oldVersion := o.Version
	result := r.db.WithContext(ctx).
		Model(o).
		Where("override_id = ? AND version = ?", o.OverrideID, oldVersion).
		Updates(map[string]interface{}{
			"status":      o.Status,
			"approved_by": o.ApprovedBy,
			"approved_at": o.ApprovedAt,
			"version":     oldVersion + 1,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrOptimisticLock
	}
	o.Version = oldVersion + 1
	return nil
}
