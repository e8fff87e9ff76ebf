package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"bugbot/backend/internal/model"
	pkgerrors "bugbot/backend/pkg/errors"
)

// ScheduleRepository 排班数据访问接口
type ScheduleRepository interface {
	Create(ctx context.Context, schedule *model.OncallSchedule) error
	GetByID(ctx context.Context, id string) (*model.OncallSchedule, error)
	ListByTeam(ctx context.Context, teamID string, from, to *time.Time) ([]model.OncallSchedule, error)
	// ListCovering 返回覆盖指定日期的排班，按 start_date 降序（最近优先）
	ListCovering(ctx context.Context, teamID string, date time.Time) ([]model.OncallSchedule, error)
	// CheckOverlap 判断 [start, end] 是否与团队既有排班区间重叠
	// excludeID 非空时排除该记录（更新场景）。
	CheckOverlap(ctx context.Context, teamID string, start, end time.Time, excludeID string) (bool, error)
	Update(ctx context.Context, schedule *model.OncallSchedule) error
	Delete(ctx context.Context, id string) error
	// DeleteFutureAuto 删除起始日晚于 after 的 auto 来源排班（manual 永不删除）
	DeleteFutureAuto(ctx context.Context, teamID string, after time.Time) error
	// ShiftCounts 统计各工程师已完成（end_date 早于 before）的班次数
	ShiftCounts(ctx context.Context, teamID string, before time.Time) (map[string]int, error)
}

// ── Schedule Repository 实现 ──

type scheduleRepo struct {
	db *gorm.DB
}

func NewScheduleRepo(db *gorm.DB) ScheduleRepository {
	return &scheduleRepo{db: db}
}

func (r *scheduleRepo) Create(ctx context.Context, schedule *model.OncallSchedule) error {
	return r.db.WithContext(ctx).Create(schedule).Error
}

func (r *scheduleRepo) GetByID(ctx context.Context, id string) (*model.OncallSchedule, error) {
	var schedule model.OncallSchedule
	err := r.db.WithContext(ctx).
		Where("schedule_id = ?", id).
		First(&schedule).Error
	if err != nil {
		return nil, err
	}
	return &schedule, nil
}

func (r *scheduleRepo) ListByTeam(ctx context.Context, teamID string, from, to *time.Time) ([]model.OncallSchedule, error) {
	var schedules []model.OncallSchedule
	q := r.db.WithContext(ctx).
		Where("team_id = ?", teamID).
		Order("start_date ASC")
	if from != nil {
		q = q.Where("end_date >= ?", *from)
	}
	if to != nil {
		q = q.Where("start_date <= ?", *to)
	}
	if err := q.Find(&schedules).Error; err != nil {
		return nil, err
	}
	return schedules, nil
}

func (r *scheduleRepo) ListCovering(ctx context.Context, teamID string, date time.Time) ([]model.OncallSchedule, error) {
	var schedules []model.OncallSchedule
	d := model.DateOnly(date)
	err := r.db.WithContext(ctx).
		Where("team_id = ? AND start_date <= ? AND end_date >= ?", teamID, d, d).
		Order("start_date DESC").
		Find(&schedules).Error
	if err != nil {
		return nil, err
	}
	return schedules, nil
}

func (r *scheduleRepo) CheckOverlap(ctx context.Context, teamID string, start, end time.Time, excludeID string) (bool, error) {
	q := r.db.WithContext(ctx).
		Model(&model.OncallSchedule{}).
		Where("team_id = ? AND start_date <= ? AND end_date >= ?",
			teamID, model.DateOnly(end), model.DateOnly(start))
	if excludeID != "" {
		q = q.Where("schedule_id != ?", excludeID)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *scheduleRepo) Update(ctx context.Context, schedule *model.OncallSchedule) error {
	oldVersion := schedule.Version
	result := r.db.WithContext(ctx).
		Model(schedule).
		Where("schedule_id = ? AND version = ?", schedule.ScheduleID, oldVersion).
		Updates(map[string]interface{}{
			"engineer_slack_id": schedule.EngineerSlackID,
			"start_date":        schedule.StartDate,
			"end_date":          schedule.EndDate,
			"schedule_type":     schedule.ScheduleType,
			"days_of_week":      schedule.DaysOfWeek,
			"updated_by":        schedule.UpdatedBy,
			"version":           oldVersion + 1,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrOptimisticLock
	}
	schedule.Version = oldVersion + 1
	return nil
}

func (r *scheduleRepo) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Where("schedule_id = ?", id).
		Delete(&model.OncallSchedule{}).Error
}

func (r *scheduleRepo) DeleteFutureAuto(ctx context.Context, teamID string, after time.Time) error {
	return r.db.WithContext(ctx).
		Where("team_id = ? AND origin = ? AND start_date > ?",
			teamID, model.ScheduleOriginAuto, model.DateOnly(after)).
		Delete(&model.OncallSchedule{}).Error
}

func (r *scheduleRepo) ShiftCounts(ctx context.Context, teamID string, before time.Time) (map[string]int, error) {
	type row struct {
		EngineerSlackID string
		Cnt             int
	}
	var rows []row
	err := r.db.WithContext(ctx).
		Model(&model.OncallSchedule{}).
		Select("engineer_slack_id, COUNT(*) AS cnt").
		Where("team_id = ? AND end_date < ?", teamID, model.DateOnly(before)).
		Group("engineer_slack_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int, len(rows))
	for _, r := range rows {
		counts[r.EngineerSlackID] = r.Cnt
	}
	return counts, nil
}
