package service

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"bugbot/backend/internal/dto"
	"bugbot/backend/internal/model"
	"bugbot/backend/internal/repository"
)

// ── 团队模块业务错误 ──

var (
	ErrTeamExists         = errors.New("该 Slack 用户组已绑定团队")
	ErrMembershipNotFound = errors.New("团队成员不存在")
	ErrMembershipExists   = errors.New("该工程师已是团队成员")
)

// TeamService 团队与成员管理业务接口
type TeamService interface {
	CreateTeam(ctx context.Context, req *dto.CreateTeamRequest, createdBy string) (*model.Team, error)
	GetTeam(ctx context.Context, teamID string) (*model.Team, error)
	ListTeams(ctx context.Context, includeInactive bool) ([]model.Team, error)
	// UpdateTeam 部分更新；轮换配置变更时重建 auto 排班投影
	UpdateTeam(ctx context.Context, teamID string, req *dto.UpdateTeamRequest, updatedBy string) (*model.Team, error)
	DeactivateTeam(ctx context.Context, teamID, deletedBy string) error

	AddMember(ctx context.Context, teamID string, req *dto.MembershipRequest, addedBy string) (*model.TeamMembership, error)
	UpdateMember(ctx context.Context, teamID, engineerSlackID string, req *dto.MembershipRequest, updatedBy string) (*model.TeamMembership, error)
	RemoveMember(ctx context.Context, teamID, engineerSlackID, removedBy string) error
	ListMembers(ctx context.Context, teamID string) ([]model.TeamMembership, error)

	ListAudit(ctx context.Context, entityType, entityID string, offset, limit int) ([]model.AuditLog, int64, error)
}

type teamService struct {
	repo   *repository.Repository
	oncall OncallService
	logger *zap.Logger
}

// NewTeamService 创建 TeamService 实例
func NewTeamService(repo *repository.Repository, oncall OncallService, logger *zap.Logger) TeamService {
	return &teamService{repo: repo, oncall: oncall, logger: logger}
}

// ════════════════════════════════════════════════════════════
// 团队
// ════════════════════════════════════════════════════════════

func (s *teamService) CreateTeam(ctx context.Context, req *dto.CreateTeamRequest, createdBy string) (*model.Team, error) {
	// slack_group_id 全局唯一
	if _, err := s.repo.Team.GetBySlackGroup(ctx, req.SlackGroupID); err == nil {
		return nil, ErrTeamExists
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logger.Error("查询团队失败", zap.Error(err), zap.String("slack_group_id", req.SlackGroupID))
		return nil, err
	}

	team := &model.Team{
		Name:             req.Name,
		SlackGroupID:     req.SlackGroupID,
		SlackChannelID:   req.SlackChannelID,
		OncallEngineer:   req.OncallEngineer,
		RotationType:     model.RotationTypeNone,
		RotationInterval: model.RotationIntervalWeekly,
		IsActive:         true,
	}
	team.CreatedBy = createdBy

	err := s.repo.Transaction(ctx, func(tr *repository.Repository) error {
		if err := tr.Team.Create(ctx, team); err != nil {
			return err
		}
		return tr.Audit.Append(ctx, &model.AuditLog{
			EntityType: model.AuditEntityTeam,
			EntityID:   team.TeamID,
			Action:     "team_created",
			OperatorID: createdBy,
		})
	})
	if err != nil {
		s.logger.Error("创建团队失败", zap.Error(err), zap.String("name", req.Name))
		return nil, err
	}
	return team, nil
}

func (s *teamService) GetTeam(ctx context.Context, teamID string) (*model.Team, error) {
	team, err := s.repo.Team.GetByID(ctx, teamID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTeamNotFound
		}
		return nil, err
	}
	return team, nil
}

func (s *teamService) ListTeams(ctx context.Context, includeInactive bool) ([]model.Team, error) {
	return s.repo.Team.List(ctx, includeInactive)
}

func (s *teamService) UpdateTeam(ctx context.Context, teamID string, req *dto.UpdateTeamRequest, updatedBy string) (*model.Team, error) {
	team, err := s.GetTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}

	diff := map[string]interface{}{}
	rotationChanged := false

	if req.Name != nil && *req.Name != team.Name {
		diff["name"] = model.FieldDiff(team.Name, *req.Name)
		team.Name = *req.Name
	}
	if req.SlackChannelID != nil && *req.SlackChannelID != team.SlackChannelID {
		diff["slack_channel_id"] = model.FieldDiff(team.SlackChannelID, *req.SlackChannelID)
		team.SlackChannelID = *req.SlackChannelID
	}
	if req.OncallEngineer != nil && *req.OncallEngineer != team.OncallEngineer {
		diff["oncall_engineer"] = model.FieldDiff(team.OncallEngineer, *req.OncallEngineer)
		team.OncallEngineer = *req.OncallEngineer
	}
	if req.RotationEnabled != nil && *req.RotationEnabled != team.RotationEnabled {
		diff["rotation_enabled"] = model.FieldDiff(team.RotationEnabled, *req.RotationEnabled)
		team.RotationEnabled = *req.RotationEnabled
		rotationChanged = true
	}
	if req.RotationType != nil && *req.RotationType != team.RotationType {
		diff["rotation_type"] = model.FieldDiff(team.RotationType, *req.RotationType)
		team.RotationType = *req.RotationType
		// 策略切换后旧游标失去意义
		team.CurrentRotationIndex = nil
		rotationChanged = true
	}
	if req.RotationOrder != nil {
		diff["rotation_order"] = model.FieldDiff([]string(team.RotationOrder), req.RotationOrder)
		team.RotationOrder = model.StringArray(req.RotationOrder)
		rotationChanged = true
	}
	if req.RotationStartDate != nil {
		start := model.DateOnly(*req.RotationStartDate)
		diff["rotation_start_date"] = model.FieldDiff(team.RotationStartDate, start)
		team.RotationStartDate = &start
		rotationChanged = true
	}
	if req.RotationInterval != nil && *req.RotationInterval != team.RotationInterval {
		diff["rotation_interval"] = model.FieldDiff(team.RotationInterval, *req.RotationInterval)
		team.RotationInterval = *req.RotationInterval
		rotationChanged = true
	}
	if req.HandoffDay != nil {
		diff["handoff_day"] = model.FieldDiff(team.HandoffDay, *req.HandoffDay)
		team.HandoffDay = req.HandoffDay
		rotationChanged = true
	}

	if len(diff) == 0 {
		return team, nil
	}

	team.UpdatedBy = updatedBy
	err = s.repo.Transaction(ctx, func(tr *repository.Repository) error {
		if err := tr.Team.Update(ctx, team); err != nil {
			return err
		}
		return tr.Audit.Append(ctx, &model.AuditLog{
			EntityType: model.AuditEntityTeam,
			EntityID:   team.TeamID,
			Action:     "team_updated",
			OperatorID: updatedBy,
			Diff:       diff,
		})
	})
	if err != nil {
		s.logger.Error("更新团队失败", zap.Error(err), zap.String("team_id", teamID))
		return nil, err
	}

	// 轮换配置变更后，旧的预测排班不再可信
	if rotationChanged && s.oncall != nil {
		if err := s.oncall.RegenerateAutoSchedules(ctx, team.TeamID); err != nil {
			s.logger.Warn("重建 auto 排班失败", zap.Error(err), zap.String("team_id", teamID))
		}
	}
	return team, nil
}

func (s *teamService) DeactivateTeam(ctx context.Context, teamID, deletedBy string) error {
	if _, err := s.GetTeam(ctx, teamID); err != nil {
		return err
	}
	return s.repo.Transaction(ctx, func(tr *repository.Repository) error {
		if err := tr.Team.Deactivate(ctx, teamID, deletedBy); err != nil {
			return err
		}
		return tr.Audit.Append(ctx, &model.AuditLog{
			EntityType: model.AuditEntityTeam,
			EntityID:   teamID,
			Action:     "team_deactivated",
			OperatorID: deletedBy,
		})
	})
}

// ════════════════════════════════════════════════════════════
// 成员
// ════════════════════════════════════════════════════════════

func (s *teamService) AddMember(ctx context.Context, teamID string, req *dto.MembershipRequest, addedBy string) (*model.TeamMembership, error) {
	if _, err := s.GetTeam(ctx, teamID); err != nil {
		return nil, err
	}
	if _, err := s.repo.Membership.GetByTeamAndEngineer(ctx, teamID, req.EngineerSlackID); err == nil {
		return nil, ErrMembershipExists
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	m := &model.TeamMembership{
		TeamID:              teamID,
		EngineerSlackID:     req.EngineerSlackID,
		Role:                model.MembershipRoleMember,
		IsEligibleForOncall: true,
		Weight:              1.0,
	}
	if req.Role != "" {
		m.Role = req.Role
	}
	if req.IsEligibleForOncall != nil {
		m.IsEligibleForOncall = *req.IsEligibleForOncall
	}
	if req.Weight != nil {
		m.Weight = *req.Weight
	}
	m.CreatedBy = addedBy

	err := s.repo.Transaction(ctx, func(tr *repository.Repository) error {
		if err := tr.Membership.Create(ctx, m); err != nil {
			return err
		}
		return tr.Audit.Append(ctx, &model.AuditLog{
			EntityType: model.AuditEntityMembership,
			EntityID:   m.MembershipID,
			Action:     "member_added",
			OperatorID: addedBy,
		})
	})
	if err != nil {
		s.logger.Error("添加成员失败", zap.Error(err),
			zap.String("team_id", teamID), zap.String("engineer", req.EngineerSlackID))
		return nil, err
	}
	return m, nil
}

func (s *teamService) UpdateMember(ctx context.Context, teamID, engineerSlackID string, req *dto.MembershipRequest, updatedBy string) (*model.TeamMembership, error) {
	m, err := s.repo.Membership.GetByTeamAndEngineer(ctx, teamID, engineerSlackID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMembershipNotFound
		}
		return nil, err
	}

	diff := map[string]interface{}{}
	if req.Role != "" && req.Role != m.Role {
		diff["role"] = model.FieldDiff(m.Role, req.Role)
		m.Role = req.Role
	}
	if req.IsEligibleForOncall != nil && *req.IsEligibleForOncall != m.IsEligibleForOncall {
		diff["is_eligible_for_oncall"] = model.FieldDiff(m.IsEligibleForOncall, *req.IsEligibleForOncall)
		m.IsEligibleForOncall = *req.IsEligibleForOncall
	}
	if req.Weight != nil && *req.Weight != m.Weight {
		diff["weight"] = model.FieldDiff(m.Weight, *req.Weight)
		m.Weight = *req.Weight
	}
	if len(diff) == 0 {
		return m, nil
	}

	m.UpdatedBy = updatedBy
	err = s.repo.Transaction(ctx, func(tr *repository.Repository) error {
		if err := tr.Membership.Update(ctx, m); err != nil {
			return err
		}
		return tr.Audit.Append(ctx, &model.AuditLog{
			EntityType: model.AuditEntityMembership,
			EntityID:   m.MembershipID,
			Action:     "member_updated",
			OperatorID: updatedBy,
			Diff:       diff,
		})
	})
	if err != nil {
		s.logger.Error("更新成员失败", zap.Error(err), zap.String("membership_id", m.MembershipID))
		return nil, err
	}
	return m, nil
}

func (s *teamService) RemoveMember(ctx context.Context, teamID, engineerSlackID, removedBy string) error {
	m, err := s.repo.Membership.GetByTeamAndEngineer(ctx, teamID, engineerSlackID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrMembershipNotFound
		}
		return err
	}
	return s.repo.Transaction(ctx, func(tr *repository.Repository) error {
		if err := tr.Membership.Delete(ctx, m.MembershipID); err != nil {
			return err
		}
		return tr.Audit.Append(ctx, &model.AuditLog{
			EntityType: model.AuditEntityMembership,
			EntityID:   m.MembershipID,
			Action:     "member_removed",
			OperatorID: removedBy,
		})
	})
}

func (s *teamService) ListMembers(ctx context.Context, teamID string) ([]model.TeamMembership, error) {
	if _, err := s.GetTeam(ctx, teamID); err != nil {
		return nil, err
	}
	return s.repo.Membership.ListByTeam(ctx, teamID)
}

func (s *teamService) ListAudit(ctx context.Context, entityType, entityID string, offset, limit int) ([]model.AuditLog, int64, error) {
	return s.repo.Audit.ListByEntity(ctx, entityType, entityID, offset, limit)
}
