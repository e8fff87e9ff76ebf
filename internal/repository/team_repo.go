package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"bugbot/backend/internal/model"
	pkgerrors "bugbot/backend/pkg/errors"
)

// TeamRepository 团队数据访问接口
type TeamRepository interface {
	Create(ctx context.Context, team *model.Team) error
	GetByID(ctx context.Context, id string) (*model.Team, error)
	GetBySlackGroup(ctx context.Context, slackGroupID string) (*model.Team, error)
	List(ctx context.Context, includeInactive bool) ([]model.Team, error)
	ListRotationEnabled(ctx context.Context) ([]model.Team, error)
	Update(ctx context.Context, team *model.Team) error
	ApplyRotation(ctx context.Context, teamID, engineerSlackID string, rotationIndex int) error
	Deactivate(ctx context.Context, id, deletedBy string) error
}

// TeamMembershipRepository 团队成员数据访问接口
type TeamMembershipRepository interface {
	Create(ctx context.Context, m *model.TeamMembership) error
	GetByID(ctx context.Context, id string) (*model.TeamMembership, error)
	GetByTeamAndEngineer(ctx context.Context, teamID, engineerSlackID string) (*model.TeamMembership, error)
	ListByTeam(ctx context.Context, teamID string) ([]model.TeamMembership, error)
	Update(ctx context.Context, m *model.TeamMembership) error
	Delete(ctx context.Context, id string) error
}

// ── Team Repository 实现 ──

type teamRepo struct {
	db *gorm.DB
}

func NewTeamRepo(db *gorm.DB) TeamRepository {
	return &teamRepo{db: db}
}

func (r *teamRepo) Create(ctx context.Context, team *model.Team) error {
	return r.db.WithContext(ctx).Create(team).Error
}

func (r *teamRepo) GetByID(ctx context.Context, id string) (*model.Team, error) {
	var team model.Team
	err := r.db.WithContext(ctx).
		Where("team_id = ?", id).
		First(&team).Error
	if err != nil {
		return nil, err
	}
	return &team, nil
}

func (r *teamRepo) GetBySlackGroup(ctx context.Context, slackGroupID string) (*model.Team, error) {
	var team model.Team
	err := r.db.WithContext(ctx).
		Where("slack_group_id = ?", slackGroupID).
		First(&team).Error
	if err != nil {
		return nil, err
	}
	return &team, nil
}

func (r *teamRepo) List(ctx context.Context, includeInactive bool) ([]model.Team, error) {
	var teams []model.Team
	q := r.db.WithContext(ctx).Order("name ASC")
	if !includeInactive {
		q = q.Where("is_active = ?", true)
	}
	if err := q.Find(&teams).Error; err != nil {
		return nil, err
	}
	return teams, nil
}

func (r *teamRepo) ListRotationEnabled(ctx context.Context) ([]model.Team, error) {
	var teams []model.Team
	err := r.db.WithContext(ctx).
		Where("is_active = ? AND rotation_enabled = ?", true, true).
		Order("name ASC").
		Find(&teams).Error
	if err != nil {
		return nil, err
	}
	return teams, nil
}

func (r *teamRepo) Update(ctx context.Context, team *model.Team) error {
	oldVersion := team.Version
	result := r.db.WithContext(ctx).
		Model(team).
		Where("team_id = ? AND version = ?", team.TeamID, oldVersion).
		Updates(map[string]interface{}{
			"name":                   team.Name,
			"slack_group_id":         team.SlackGroupID,
			"slack_channel_id":       team.SlackChannelID,
			"oncall_engineer":        team.OncallEngineer,
			"rotation_enabled":       team.RotationEnabled,
			"rotation_type":          team.RotationType,
			"rotation_order":         team.RotationOrder,
			"rotation_start_date":    team.RotationStartDate,
			"rotation_interval":      team.RotationInterval,
			"handoff_day":            team.HandoffDay,
			"current_rotation_index": team.CurrentRotationIndex,
			"is_active":              team.IsActive,
			"updated_by":             team.UpdatedBy,
			"version":                oldVersion + 1,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrOptimisticLock
	}
	team.Version = oldVersion + 1
	return nil
}

// ApplyRotation 仅更新轮换产生的字段，避免与管理端编辑互相覆盖
func (r *teamRepo) ApplyRotation(ctx context.Context, teamID, engineerSlackID string, rotationIndex int) error {
	return r.db.WithContext(ctx).
		Model(&model.Team{}).
		Where("team_id = ?", teamID).
		Updates(map[string]interface{}{
			"oncall_engineer":        engineerSlackID,
			"current_rotation_index": rotationIndex,
			"updated_at":             time.Now(),
		}).Error
}

func (r *teamRepo) Deactivate(ctx context.Context, id, deletedBy string) error {
	return r.db.WithContext(ctx).
		Model(&model.Team{}).
		Where("team_id = ?", id).
		Updates(map[string]interface{}{
			"is_active":  false,
			"updated_by": deletedBy,
			"updated_at": time.Now(),
		}).Error
}

// ── TeamMembership Repository 实现 ──

type teamMembershipRepo struct {
	db *gorm.DB
}

func NewTeamMembershipRepo(db *gorm.DB) TeamMembershipRepository {
	return &teamMembershipRepo{db: db}
}

func (r *teamMembershipRepo) Create(ctx context.Context, m *model.TeamMembership) error {
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *teamMembershipRepo) GetByID(ctx context.Context, id string) (*model.TeamMembership, error) {
	var m model.TeamMembership
	if err := r.db.WithContext(ctx).Where("membership_id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *teamMembershipRepo) GetByTeamAndEngineer(ctx context.Context, teamID, engineerSlackID string) (*model.TeamMembership, error) {
	var m model.TeamMembership
	err := r.db.WithContext(ctx).
		Where("team_id = ? AND engineer_slack_id = ?", teamID, engineerSlackID).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *teamMembershipRepo) ListByTeam(ctx context.Context, teamID string) ([]model.TeamMembership, error) {
	var members []model.TeamMembership
	err := r.db.WithContext(ctx).
		Where("team_id = ?", teamID).
		Order("engineer_slack_id ASC").
		Find(&members).Error
	if err != nil {
		return nil, err
	}
	return members, nil
}

func (r *teamMembershipRepo) Update(ctx context.Context, m *model.TeamMembership) error {
	return r.db.WithContext(ctx).
		Model(m).
		Where("membership_id = ?", m.MembershipID).
		Updates(map[string]interface{}{
			"role":                   m.Role,
			"is_eligible_for_oncall": m.IsEligibleForOncall,
			"weight":                 m.Weight,
			"updated_by":             m.UpdatedBy,
		}).Error
}

func (r *teamMembershipRepo) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Where("membership_id = ?", id).
		Delete(&model.TeamMembership{}).Error
}
