package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"bugbot/backend/config"
	"bugbot/backend/internal/dto"
	"bugbot/backend/internal/model"
	"bugbot/backend/internal/repository"
	"bugbot/backend/internal/rotation"
)

// ── 值班模块业务错误 ──

var (
	ErrTeamNotFound            = errors.New("团队不存在")
	ErrScheduleNotFound        = errors.New("排班不存在")
	ErrScheduleOverlap         = errors.New("排班区间与该团队既有排班重叠")
	ErrOverrideNotFound        = errors.New("覆盖申请不存在")
	ErrOverrideOverlap         = errors.New("覆盖区间与既有覆盖申请重叠")
	ErrInvalidStatusTransition = errors.New("无效的覆盖状态转换")
	ErrInvalidDateRange        = errors.New("结束日期不能早于开始日期")
	ErrDaysOfWeekRequired      = errors.New("daily 排班必须指定 days_of_week")
	ErrNoOncallAssigned        = errors.New("当前无值班安排")
)

// 值班来源（CurrentOncallResponse.Source）
const (
	SourceOverride = "override"
	SourceSchedule = "schedule"
	SourceRotation = "rotation"
	SourceManual   = "manual"
)

// OncallService 值班解析与编排业务接口
type OncallService interface {
	// 解析当前值班人（四级优先级：覆盖 → 排班 → 轮换 → 手动兜底）
	// 轮换到期时会作为副作用推进轮换；只读投影请使用 PreviewRotation。
	ResolveCurrentOnCall(ctx context.Context, teamID string, date *time.Time) (*dto.CurrentOncallResponse, error)

	// 排班
	AssignOncall(ctx context.Context, req *dto.AssignOncallRequest, createdBy string) (*model.OncallSchedule, error)
	UpdateSchedule(ctx context.Context, scheduleID string, req *dto.UpdateScheduleRequest, updatedBy string) (*model.OncallSchedule, error)
	DeleteSchedule(ctx context.Context, scheduleID, deletedBy string) error
	ListSchedules(ctx context.Context, teamID string, from, to *time.Time) ([]model.OncallSchedule, error)

	// 覆盖
	CreateOverride(ctx context.Context, req *dto.CreateOverrideRequest, requestedBy string, autoApprove bool) (*model.OncallOverride, error)
	ApproveOverride(ctx context.Context, overrideID, approvedBy string) (*model.OncallOverride, error)
	RejectOverride(ctx context.Context, overrideID, rejectedBy string) (*model.OncallOverride, error)
	CancelOverride(ctx context.Context, overrideID, cancelledBy string) (*model.OncallOverride, error)
	ListOverrides(ctx context.Context, teamID, status string, offset, limit int) ([]model.OncallOverride, int64, error)

	// 轮换
	PreviewRotation(ctx context.Context, teamID string, periods int) (*dto.RotationPreviewResponse, error)
	GenerateSchedules(ctx context.Context, teamID string, periods int, createdBy string) ([]model.OncallSchedule, error)
	ProcessAutoRotation(ctx context.Context, teamID string, date *time.Time) (bool, error)
	TriggerRotationSweep(ctx context.Context) (*dto.SweepSummary, error)
	// RegenerateAutoSchedules 重建 auto 来源的排班投影（轮换配置变更后调用）
	RegenerateAutoSchedules(ctx context.Context, teamID string) error

	// 历史
	ListHistory(ctx context.Context, teamID string, offset, limit int) ([]model.OncallHistory, int64, error)
}

type oncallService struct {
	repo      *repository.Repository
	directory DirectoryClient
	notifier  NotificationClient
	locker    TeamLocker
	cfg       *config.RotationConfig
	logger    *zap.Logger
}

// NewOncallService 创建 OncallService 实例
func NewOncallService(repo *repository.Repository, directory DirectoryClient, notifier NotificationClient, locker TeamLocker, cfg *config.RotationConfig, logger *zap.Logger) OncallService {
	return &oncallService{
		repo:      repo,
		directory: directory,
		notifier:  notifier,
		locker:    locker,
		cfg:       cfg,
		logger:    logger,
	}
}

// ── 内部辅助 ──

func (s *oncallService) loadTeam(ctx context.Context, teamID string) (*model.Team, error) {
	team, err := s.repo.Team.GetByID(ctx, teamID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTeamNotFound
		}
		s.logger.Error("查询团队失败", zap.Error(err), zap.String("team_id", teamID))
		return nil, err
	}
	return team, nil
}

// strategyInputs 按策略收集 NextEngineer / Lookahead 所需输入
//
// round_robin 的 roster 来自目录协作方，调用失败时降级为空（解析为
// "不适用"而非错误）；weighted 需要成员权重与已完成班次数。
func (s *oncallService) strategyInputs(ctx context.Context, team *model.Team, date time.Time) (roster []string, eligible map[string]bool, members []model.TeamMembership, counts map[string]int, err error) {
	members, err = s.repo.Membership.ListByTeam(ctx, team.TeamID)
	if err != nil {
		s.logger.Error("查询团队成员失败", zap.Error(err), zap.String("team_id", team.TeamID))
		return nil, nil, nil, nil, err
	}

	switch rotation.ParseStrategy(team.RotationType) {
	case rotation.StrategyRoundRobin:
		if s.directory != nil {
			roster, err = s.directory.ListRosterMembers(ctx, team.SlackGroupID)
			if err != nil {
				// 目录不可用时降级：无 roster 数据则轮换不适用
				s.logger.Warn("获取用户组成员失败，轮换降级为不适用",
					zap.Error(err), zap.String("slack_group_id", team.SlackGroupID))
				roster, err = nil, nil
			}
		}
		if len(members) > 0 {
			eligible = make(map[string]bool, len(members))
			for _, m := range members {
				if m.IsEligibleForOncall {
					eligible[m.EngineerSlackID] = true
				}
			}
		}
	case rotation.StrategyWeighted:
		counts, err = s.repo.Schedule.ShiftCounts(ctx, team.TeamID, date)
		if err != nil {
			s.logger.Error("统计班次数失败", zap.Error(err), zap.String("team_id", team.TeamID))
			return nil, nil, nil, nil, err
		}
	}
	return roster, eligible, members, counts, nil
}

// computeNext 计算下一任值班人及其在策略池中的索引
func (s *oncallService) computeNext(ctx context.Context, team *model.Team, date time.Time) (string, int, error) {
	roster, eligible, members, counts, err := s.strategyInputs(ctx, team, date)
	if err != nil {
		return "", 0, err
	}
	st := rotation.StateFromTeam(team, counts)
	next := rotation.NextEngineer(team, st, roster, eligible, members)
	if next == "" {
		return "", 0, nil
	}
	return next, rotation.PoolIndexOf(team, roster, eligible, members, next), nil
}

// applyRotation 持久化轮换结果并双写历史/审计，通知尽力而为
func (s *oncallService) applyRotation(ctx context.Context, team *model.Team, next string, index int, date time.Time) error {
	prev := team.OncallEngineer
	prevIndex := team.CurrentRotationIndex

	err := s.repo.Transaction(ctx, func(tr *repository.Repository) error {
		if err := tr.Team.ApplyRotation(ctx, team.TeamID, next, index); err != nil {
			return err
		}
		if err := tr.History.Append(ctx, &model.OncallHistory{
			TeamID:                  team.TeamID,
			EngineerSlackID:         next,
			ChangeType:              model.ChangeTypeAutoRotation,
			EffectiveDate:           date,
			PreviousEngineerSlackID: prev,
			ChangeReason:            fmt.Sprintf("自动轮换（%s）", team.RotationType),
		}); err != nil {
			return err
		}
		return tr.Audit.Append(ctx, &model.AuditLog{
			EntityType: model.AuditEntityTeam,
			EntityID:   team.TeamID,
			Action:     model.ChangeTypeAutoRotation,
			Diff: map[string]interface{}{
				"oncall_engineer":        model.FieldDiff(prev, next),
				"current_rotation_index": model.FieldDiff(prevIndex, index),
			},
		})
	})
	if err != nil {
		s.logger.Error("应用轮换失败", zap.Error(err), zap.String("team_id", team.TeamID))
		return err
	}

	team.OncallEngineer = next
	team.CurrentRotationIndex = &index

	if s.notifier != nil {
		if err := s.notifier.NotifyRotation(ctx, next, prev, team.SlackChannelID, date); err != nil {
			s.logger.Warn("轮换通知发送失败", zap.Error(err), zap.String("team_id", team.TeamID))
		}
	}
	return nil
}

// resolveStatic 只读解析：覆盖 → 排班 → 手动兜底（不触发轮换副作用）
func (s *oncallService) resolveStatic(ctx context.Context, team *model.Team, date time.Time) (*dto.CurrentOncallResponse, error) {
	o, err := s.repo.Override.GetActive(ctx, team.TeamID, date)
	if err == nil {
		return &dto.CurrentOncallResponse{
			TeamID:          team.TeamID,
			EngineerSlackID: o.SubstituteSlackID,
			Source:          SourceOverride,
			EffectiveDate:   model.DateOnly(o.OverrideDate),
		}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	schedules, err := s.repo.Schedule.ListCovering(ctx, team.TeamID, date)
	if err != nil {
		return nil, err
	}
	for _, sched := range schedules {
		// daily 类型要求命中 days_of_week，否则继续向后匹配
		if sched.Covers(date) {
			return &dto.CurrentOncallResponse{
				TeamID:          team.TeamID,
				EngineerSlackID: sched.EngineerSlackID,
				Source:          SourceSchedule,
				EffectiveDate:   model.DateOnly(sched.StartDate),
				ScheduleID:      sched.ScheduleID,
			}, nil
		}
	}

	if team.OncallEngineer != "" {
		return &dto.CurrentOncallResponse{
			TeamID:          team.TeamID,
			EngineerSlackID: team.OncallEngineer,
			Source:          SourceManual,
			EffectiveDate:   date,
		}, nil
	}
	return nil, nil
}

func (s *oncallService) enrichName(ctx context.Context, resp *dto.CurrentOncallResponse) *dto.CurrentOncallResponse {
	if resp != nil && s.directory != nil {
		resp.EngineerName = s.directory.ResolveDisplayName(ctx, resp.EngineerSlackID)
	}
	return resp
}

func resolveDate(date *time.Time) time.Time {
	if date != nil {
		return model.DateOnly(*date)
	}
	return model.DateOnly(time.Now())
}

// ════════════════════════════════════════════════════════════
// 值班解析
// ════════════════════════════════════════════════════════════

func (s *oncallService) ResolveCurrentOnCall(ctx context.Context, teamID string, date *time.Time) (*dto.CurrentOncallResponse, error) {
	team, err := s.loadTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	d := resolveDate(date)

	// 1. 覆盖（最高优先级）
	o, err := s.repo.Override.GetActive(ctx, team.TeamID, d)
	if err == nil {
		return s.enrichName(ctx, &dto.CurrentOncallResponse{
			TeamID:          team.TeamID,
			EngineerSlackID: o.SubstituteSlackID,
			Source:          SourceOverride,
			EffectiveDate:   model.DateOnly(o.OverrideDate),
		}), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logger.Error("查询生效覆盖失败", zap.Error(err), zap.String("team_id", teamID))
		return nil, err
	}

	// 2. 排班
	schedules, err := s.repo.Schedule.ListCovering(ctx, team.TeamID, d)
	if err != nil {
		s.logger.Error("查询覆盖日期的排班失败", zap.Error(err), zap.String("team_id", teamID))
		return nil, err
	}
	for _, sched := range schedules {
		if sched.Covers(d) {
			return s.enrichName(ctx, &dto.CurrentOncallResponse{
				TeamID:          team.TeamID,
				EngineerSlackID: sched.EngineerSlackID,
				Source:          SourceSchedule,
				EffectiveDate:   model.DateOnly(sched.StartDate),
				ScheduleID:      sched.ScheduleID,
			}), nil
		}
	}

	// 3. 轮换（到期时推进，是读路径中唯一的写副作用）
	if team.RotationEnabled && rotation.ShouldRotate(team, d) {
		next, index, err := s.computeNext(ctx, team, d)
		if err != nil {
			return nil, err
		}
		if next != "" {
			if err := s.applyRotation(ctx, team, next, index, d); err != nil {
				return nil, err
			}
			return s.enrichName(ctx, &dto.CurrentOncallResponse{
				TeamID:          team.TeamID,
				EngineerSlackID: next,
				Source:          SourceRotation,
				EffectiveDate:   d,
			}), nil
		}
	}

	// 4. 手动兜底
	if team.OncallEngineer != "" {
		return s.enrichName(ctx, &dto.CurrentOncallResponse{
			TeamID:          team.TeamID,
			EngineerSlackID: team.OncallEngineer,
			Source:          SourceManual,
			EffectiveDate:   d,
		}), nil
	}

	return nil, ErrNoOncallAssigned
}

// ════════════════════════════════════════════════════════════
// 排班
// ════════════════════════════════════════════════════════════

func (s *oncallService) AssignOncall(ctx context.Context, req *dto.AssignOncallRequest, createdBy string) (*model.OncallSchedule, error) {
	team, err := s.loadTeam(ctx, req.TeamID)
	if err != nil {
		return nil, err
	}

	start := model.DateOnly(req.StartDate)
	end := model.DateOnly(req.EndDate)
	if end.Before(start) {
		return nil, ErrInvalidDateRange
	}
	if req.ScheduleType == model.ScheduleTypeDaily && len(req.DaysOfWeek) == 0 {
		return nil, ErrDaysOfWeekRequired
	}

	// 区间重叠在任何写入前同步拒绝
	overlap, err := s.repo.Schedule.CheckOverlap(ctx, team.TeamID, start, end, "")
	if err != nil {
		s.logger.Error("排班重叠检查失败", zap.Error(err), zap.String("team_id", team.TeamID))
		return nil, err
	}
	if overlap {
		return nil, ErrScheduleOverlap
	}

	// 插入前快照当时的值班人（历史记录用，不触发轮换）
	previous := ""
	if cur, err := s.resolveStatic(ctx, team, start); err == nil && cur != nil {
		previous = cur.EngineerSlackID
	}

	schedule := &model.OncallSchedule{
		TeamID:          team.TeamID,
		EngineerSlackID: req.EngineerSlackID,
		StartDate:       start,
		EndDate:         end,
		ScheduleType:    req.ScheduleType,
		DaysOfWeek:      model.IntArray(req.DaysOfWeek),
		Origin:          model.ScheduleOriginManual,
		CreatedBy:       createdBy,
	}

	err = s.repo.Transaction(ctx, func(tr *repository.Repository) error {
		if err := tr.Schedule.Create(ctx, schedule); err != nil {
			return err
		}
		if err := tr.History.Append(ctx, &model.OncallHistory{
			TeamID:                  team.TeamID,
			EngineerSlackID:         req.EngineerSlackID,
			ChangeType:              model.ChangeTypeScheduleCreated,
			EffectiveDate:           start,
			PreviousEngineerSlackID: previous,
			ChangedBy:               createdBy,
			ChangeReason: fmt.Sprintf("排班创建：%s %s ~ %s",
				req.ScheduleType, start.Format("2006-01-02"), end.Format("2006-01-02")),
		}); err != nil {
			return err
		}
		return tr.Audit.Append(ctx, &model.AuditLog{
			EntityType: model.AuditEntitySchedule,
			EntityID:   schedule.ScheduleID,
			Action:     model.ChangeTypeScheduleCreated,
			OperatorID: createdBy,
		})
	})
	if err != nil {
		s.logger.Error("创建排班失败", zap.Error(err), zap.String("team_id", team.TeamID))
		return nil, err
	}

	// 已开始或今日生效的排班才发通知；失败不回滚排班
	if s.notifier != nil && !start.After(model.DateOnly(time.Now())) {
		if err := s.notifier.NotifyAssignment(ctx, req.EngineerSlackID, team.Name, start, end, req.ScheduleType, req.DaysOfWeek); err != nil {
			s.logger.Warn("排班通知发送失败", zap.Error(err), zap.String("team_id", team.TeamID))
		}
	}

	return schedule, nil
}

func (s *oncallService) UpdateSchedule(ctx context.Context, scheduleID string, req *dto.UpdateScheduleRequest, updatedBy string) (*model.OncallSchedule, error) {
	schedule, err := s.repo.Schedule.GetByID(ctx, scheduleID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrScheduleNotFound
		}
		return nil, err
	}

	if req.EngineerSlackID != nil {
		schedule.EngineerSlackID = *req.EngineerSlackID
	}
	if req.StartDate != nil {
		schedule.StartDate = model.DateOnly(*req.StartDate)
	}
	if req.EndDate != nil {
		schedule.EndDate = model.DateOnly(*req.EndDate)
	}
	if req.DaysOfWeek != nil {
		schedule.DaysOfWeek = model.IntArray(req.DaysOfWeek)
	}
	if schedule.EndDate.Before(schedule.StartDate) {
		return nil, ErrInvalidDateRange
	}

	// 重叠检查排除自身
	overlap, err := s.repo.Schedule.CheckOverlap(ctx, schedule.TeamID, schedule.StartDate, schedule.EndDate, schedule.ScheduleID)
	if err != nil {
		return nil, err
	}
	if overlap {
		return nil, ErrScheduleOverlap
	}

	schedule.UpdatedBy = updatedBy
	err = s.repo.Transaction(ctx, func(tr *repository.Repository) error {
		if err := tr.Schedule.Update(ctx, schedule); err != nil {
			return err
		}
		if err := tr.History.Append(ctx, &model.OncallHistory{
			TeamID:          schedule.TeamID,
			EngineerSlackID: schedule.EngineerSlackID,
			ChangeType:      model.ChangeTypeScheduleUpdated,
			EffectiveDate:   schedule.StartDate,
			ChangedBy:       updatedBy,
		}); err != nil {
			return err
		}
		return tr.Audit.Append(ctx, &model.AuditLog{
			EntityType: model.AuditEntitySchedule,
			EntityID:   schedule.ScheduleID,
			Action:     model.ChangeTypeScheduleUpdated,
			OperatorID: updatedBy,
		})
	})
	if err != nil {
		s.logger.Error("更新排班失败", zap.Error(err), zap.String("schedule_id", scheduleID))
		return nil, err
	}
	return schedule, nil
}

func (s *oncallService) DeleteSchedule(ctx context.Context, scheduleID, deletedBy string) error {
	schedule, err := s.repo.Schedule.GetByID(ctx, scheduleID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrScheduleNotFound
		}
		return err
	}

	return s.repo.Transaction(ctx, func(tr *repository.Repository) error {
		if err := tr.Schedule.Delete(ctx, scheduleID); err != nil {
			return err
		}
		if err := tr.History.Append(ctx, &model.OncallHistory{
			TeamID:          schedule.TeamID,
			EngineerSlackID: schedule.EngineerSlackID,
			ChangeType:      model.ChangeTypeScheduleDeleted,
			EffectiveDate:   schedule.StartDate,
			ChangedBy:       deletedBy,
		}); err != nil {
			return err
		}
		return tr.Audit.Append(ctx, &model.AuditLog{
			EntityType: model.AuditEntitySchedule,
			EntityID:   scheduleID,
			Action:     model.ChangeTypeScheduleDeleted,
			OperatorID: deletedBy,
		})
	})
}

func (s *oncallService) ListSchedules(ctx context.Context, teamID string, from, to *time.Time) ([]model.OncallSchedule, error) {
	if _, err := s.loadTeam(ctx, teamID); err != nil {
		return nil, err
	}
	return s.repo.Schedule.ListByTeam(ctx, teamID, from, to)
}

// ════════════════════════════════════════════════════════════
// 覆盖
// ════════════════════════════════════════════════════════════

func (s *oncallService) CreateOverride(ctx context.Context, req *dto.CreateOverrideRequest, requestedBy string, autoApprove bool) (*model.OncallOverride, error) {
	team, err := s.loadTeam(ctx, req.TeamID)
	if err != nil {
		return nil, err
	}

	start := model.DateOnly(req.OverrideDate)
	end := start
	var endPtr *time.Time
	if req.EndDate != nil {
		end = model.DateOnly(*req.EndDate)
		if end.Before(start) {
			return nil, ErrInvalidDateRange
		}
		endPtr = &end
	}

	overlap, err := s.repo.Override.CheckOverlap(ctx, team.TeamID, start, end, "")
	if err != nil {
		s.logger.Error("覆盖重叠检查失败", zap.Error(err), zap.String("team_id", team.TeamID))
		return nil, err
	}
	if overlap {
		return nil, ErrOverrideOverlap
	}

	// 原值班人缺省时从当时的值班解析结果快照（审计用）
	original := req.OriginalSlackID
	if original == "" {
		if cur, err := s.resolveStatic(ctx, team, start); err == nil && cur != nil {
			original = cur.EngineerSlackID
		}
	}

	override := &model.OncallOverride{
		TeamID:            team.TeamID,
		OverrideDate:      start,
		EndDate:           endPtr,
		SubstituteSlackID: req.SubstituteSlackID,
		OriginalSlackID:   original,
		Reason:            req.Reason,
		Status:            model.OverrideStatusPending,
		RequestedBy:       requestedBy,
	}
	if autoApprove {
		now := time.Now()
		override.Status = model.OverrideStatusApproved
		override.ApprovedBy = requestedBy
		override.ApprovedAt = &now
	}

	err = s.repo.Transaction(ctx, func(tr *repository.Repository) error {
		if err := tr.Override.Create(ctx, override); err != nil {
			return err
		}
		if err := tr.History.Append(ctx, &model.OncallHistory{
			TeamID:                  team.TeamID,
			EngineerSlackID:         req.SubstituteSlackID,
			ChangeType:              model.ChangeTypeOverrideCreated,
			EffectiveDate:           start,
			PreviousEngineerSlackID: original,
			ChangedBy:               requestedBy,
			ChangeReason:            req.Reason,
		}); err != nil {
			return err
		}
		return tr.Audit.Append(ctx, &model.AuditLog{
			EntityType: model.AuditEntityOverride,
			EntityID:   override.OverrideID,
			Action:     model.ChangeTypeOverrideCreated,
			OperatorID: requestedBy,
			Diff: map[string]interface{}{
				"status": model.FieldDiff(nil, override.Status),
			},
		})
	})
	if err != nil {
		s.logger.Error("创建覆盖失败", zap.Error(err), zap.String("team_id", team.TeamID))
		return nil, err
	}
	return override, nil
}

// decideOverride 覆盖状态机的统一转换入口
func (s *oncallService) decideOverride(ctx context.Context, overrideID, operator, fromStatus, toStatus, changeType string) (*model.OncallOverride, error) {
	override, err := s.repo.Override.GetByID(ctx, overrideID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOverrideNotFound
		}
		return nil, err
	}
	if override.Status != fromStatus {
		return nil, ErrInvalidStatusTransition
	}

	prevStatus := override.Status
	now := time.Now()
	override.Status = toStatus
	override.ApprovedBy = operator
	override.ApprovedAt = &now

	err = s.repo.Transaction(ctx, func(tr *repository.Repository) error {
		if err := tr.Override.Update(ctx, override); err != nil {
			return err
		}
		if err := tr.History.Append(ctx, &model.OncallHistory{
			TeamID:          override.TeamID,
			EngineerSlackID: override.SubstituteSlackID,
			ChangeType:      changeType,
			EffectiveDate:   model.DateOnly(override.OverrideDate),
			ChangedBy:       operator,
		}); err != nil {
			return err
		}
		return tr.Audit.Append(ctx, &model.AuditLog{
			EntityType: model.AuditEntityOverride,
			EntityID:   override.OverrideID,
			Action:     changeType,
			OperatorID: operator,
			Diff: map[string]interface{}{
				"status": model.FieldDiff(prevStatus, toStatus),
			},
		})
	})
	if err != nil {
		s.logger.Error("更新覆盖状态失败", zap.Error(err), zap.String("override_id", overrideID))
		return nil, err
	}

	// 决定结果通知申请人（尽力而为）
	if s.notifier != nil {
		if err := s.notifier.NotifyOverrideDecision(ctx, override.RequestedBy, override.SubstituteSlackID, toStatus, override.Reason); err != nil {
			s.logger.Warn("覆盖决定通知发送失败", zap.Error(err), zap.String("override_id", overrideID))
		}
	}
	return override, nil
}

func (s *oncallService) ApproveOverride(ctx context.Context, overrideID, approvedBy string) (*model.OncallOverride, error) {
	return s.decideOverride(ctx, overrideID, approvedBy,
		model.OverrideStatusPending, model.OverrideStatusApproved, model.ChangeTypeOverrideApproved)
}

func (s *oncallService) RejectOverride(ctx context.Context, overrideID, rejectedBy string) (*model.OncallOverride, error) {
	return s.decideOverride(ctx, overrideID, rejectedBy,
		model.OverrideStatusPending, model.OverrideStatusRejected, model.ChangeTypeOverrideRejected)
}

func (s *oncallService) CancelOverride(ctx context.Context, overrideID, cancelledBy string) (*model.OncallOverride, error) {
	return s.decideOverride(ctx, overrideID, cancelledBy,
		model.OverrideStatusApproved, model.OverrideStatusCancelled, model.ChangeTypeOverrideCancelled)
}

func (s *oncallService) ListOverrides(ctx context.Context, teamID, status string, offset, limit int) ([]model.OncallOverride, int64, error) {
	if _, err := s.loadTeam(ctx, teamID); err != nil {
		return nil, 0, err
	}
	return s.repo.Override.ListByTeam(ctx, teamID, status, offset, limit)
}

// ════════════════════════════════════════════════════════════
// 轮换
// ════════════════════════════════════════════════════════════

func (s *oncallService) PreviewRotation(ctx context.Context, teamID string, periods int) (*dto.RotationPreviewResponse, error) {
	team, err := s.loadTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if periods <= 0 {
		periods = s.cfg.LookaheadPeriods
	}

	today := model.DateOnly(time.Now())
	roster, eligible, members, counts, err := s.strategyInputs(ctx, team, today)
	if err != nil {
		return nil, err
	}

	st := rotation.StateFromTeam(team, counts)
	return &dto.RotationPreviewResponse{
		TeamID:  team.TeamID,
		Periods: rotation.Lookahead(team, st, roster, eligible, members, periods, today),
	}, nil
}

// generateAutoSchedules 将 Lookahead 投影落库为 auto 来源排班
// 与既有排班重叠的周期跳过而非报错：自动生成永不阻塞人工排班。
func (s *oncallService) generateAutoSchedules(ctx context.Context, team *model.Team, periods int, createdBy string, today time.Time) ([]model.OncallSchedule, error) {
	roster, eligible, members, counts, err := s.strategyInputs(ctx, team, today)
	if err != nil {
		return nil, err
	}
	st := rotation.StateFromTeam(team, counts)
	projection := rotation.Lookahead(team, st, roster, eligible, members, periods, today)

	created := make([]model.OncallSchedule, 0, len(projection))
	for _, p := range projection {
		overlap, err := s.repo.Schedule.CheckOverlap(ctx, team.TeamID, p.Start, p.End, "")
		if err != nil {
			return created, err
		}
		if overlap {
			continue
		}
		schedule := model.OncallSchedule{
			TeamID:          team.TeamID,
			EngineerSlackID: p.EngineerID,
			StartDate:       p.Start,
			EndDate:         p.End,
			ScheduleType:    model.ScheduleTypeWeekly,
			Origin:          model.ScheduleOriginAuto,
			CreatedBy:       createdBy,
		}
		if err := s.repo.Schedule.Create(ctx, &schedule); err != nil {
			return created, err
		}
		created = append(created, schedule)
	}
	return created, nil
}

func (s *oncallService) GenerateSchedules(ctx context.Context, teamID string, periods int, createdBy string) ([]model.OncallSchedule, error) {
	team, err := s.loadTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if periods <= 0 {
		periods = s.cfg.LookaheadPeriods
	}
	return s.generateAutoSchedules(ctx, team, periods, createdBy, model.DateOnly(time.Now()))
}

func (s *oncallService) RegenerateAutoSchedules(ctx context.Context, teamID string) error {
	team, err := s.loadTeam(ctx, teamID)
	if err != nil {
		return err
	}
	today := model.DateOnly(time.Now())
	if err := s.repo.Schedule.DeleteFutureAuto(ctx, teamID, today); err != nil {
		s.logger.Error("清理 auto 排班失败", zap.Error(err), zap.String("team_id", teamID))
		return err
	}
	if !team.RotationEnabled {
		return nil
	}
	_, err = s.generateAutoSchedules(ctx, team, s.cfg.LookaheadPeriods, "system", today)
	return err
}

func (s *oncallService) ProcessAutoRotation(ctx context.Context, teamID string, date *time.Time) (bool, error) {
	team, err := s.loadTeam(ctx, teamID)
	if err != nil {
		return false, err
	}
	if !team.IsActive || !team.RotationEnabled {
		return false, nil
	}

	d := resolveDate(date)
	if !rotation.ShouldRotate(team, d) {
		return false, nil
	}

	// 团队级锁：收窄幂等检查与写入之间的竞态窗口
	if s.locker != nil {
		ttl := time.Duration(s.cfg.LockTTLSeconds) * time.Second
		ok, err := s.locker.AcquireTeamLock(ctx, team.TeamID, ttl)
		if err != nil {
			s.logger.Warn("获取团队轮换锁失败", zap.Error(err), zap.String("team_id", teamID))
		} else if !ok {
			s.logger.Info("团队轮换正在进行，跳过", zap.String("team_id", teamID))
			return false, nil
		} else {
			defer func() {
				if err := s.locker.ReleaseTeamLock(ctx, team.TeamID); err != nil {
					s.logger.Warn("释放团队轮换锁失败", zap.Error(err), zap.String("team_id", teamID))
				}
			}()
		}
	}

	// 幂等保护：同日已有 auto_rotation 历史则不重复触发
	latest, err := s.repo.History.Latest(ctx, team.TeamID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logger.Error("查询最近历史失败", zap.Error(err), zap.String("team_id", teamID))
		return false, err
	}
	if latest != nil && latest.ChangeType == model.ChangeTypeAutoRotation &&
		model.DateOnly(latest.EffectiveDate).Equal(d) {
		return false, nil
	}

	next, index, err := s.computeNext(ctx, team, d)
	if err != nil {
		return false, err
	}
	if next == "" {
		// 策略未配置或无候选人：视为"无事可做"而非失败
		return false, nil
	}

	if err := s.applyRotation(ctx, team, next, index, d); err != nil {
		return false, err
	}

	// 轮换后重建 auto 投影，保持预测排班与刚应用的轮换一致
	if err := s.repo.Schedule.DeleteFutureAuto(ctx, team.TeamID, d); err != nil {
		s.logger.Warn("清理 auto 排班失败", zap.Error(err), zap.String("team_id", teamID))
		return true, nil
	}
	if _, err := s.generateAutoSchedules(ctx, team, s.cfg.LookaheadPeriods, "system", d); err != nil {
		s.logger.Warn("重建 auto 排班失败", zap.Error(err), zap.String("team_id", teamID))
	}
	return true, nil
}

func (s *oncallService) TriggerRotationSweep(ctx context.Context) (*dto.SweepSummary, error) {
	teams, err := s.repo.Team.ListRotationEnabled(ctx)
	if err != nil {
		s.logger.Error("查询启用轮换的团队失败", zap.Error(err))
		return nil, err
	}

	summary := &dto.SweepSummary{Processed: len(teams)}
	for _, team := range teams {
		rotated, err := s.ProcessAutoRotation(ctx, team.TeamID, nil)
		switch {
		case err != nil:
			summary.Errors++
			s.logger.Error("团队轮换处理失败", zap.Error(err), zap.String("team_id", team.TeamID))
		case rotated:
			summary.Rotated++
		default:
			summary.Skipped++
		}
	}

	s.logger.Info("轮换扫描完成",
		zap.Int("processed", summary.Processed),
		zap.Int("rotated", summary.Rotated),
		zap.Int("skipped", summary.Skipped),
		zap.Int("errors", summary.Errors),
	)
	return summary, nil
}

// ════════════════════════════════════════════════════════════
// 历史
// ════════════════════════════════════════════════════════════

func (s *oncallService) ListHistory(ctx context.Context, teamID string, offset, limit int) ([]model.OncallHistory, int64, error) {
	if _, err := s.loadTeam(ctx, teamID); err != nil {
		return nil, 0, err
	}
	return s.repo.History.ListByTeam(ctx, teamID, offset, limit)
}
