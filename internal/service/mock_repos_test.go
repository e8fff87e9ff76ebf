package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"

	"bugbot/backend/internal/model"
	"bugbot/backend/internal/repository"
)

// ── Mock TeamRepository ──

type mockTeamRepo struct {
	teams map[string]*model.Team
	seq   int
}

func newMockTeamRepo() *mockTeamRepo {
	return &mockTeamRepo{teams: make(map[string]*model.Team)}
}

func (m *mockTeamRepo) Create(_ context.Context, team *model.Team) error {
	if team.TeamID == "" {
		m.seq++
		team.TeamID = fmt.Sprintf("team-%d", m.seq)
	}
	if team.Version == 0 {
		team.Version = 1
	}
	m.teams[team.TeamID] = team
	return nil
}

func (m *mockTeamRepo) GetByID(_ context.Context, id string) (*model.Team, error) {
	if t, ok := m.teams[id]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockTeamRepo) GetBySlackGroup(_ context.Context, slackGroupID string) (*model.Team, error) {
	for _, t := range m.teams {
		if t.SlackGroupID == slackGroupID {
			cp := *t
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockTeamRepo) List(_ context.Context, includeInactive bool) ([]model.Team, error) {
	var result []model.Team
	for _, t := range m.teams {
		if includeInactive || t.IsActive {
			result = append(result, *t)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (m *mockTeamRepo) ListRotationEnabled(_ context.Context) ([]model.Team, error) {
	var result []model.Team
	for _, t := range m.teams {
		if t.IsActive && t.RotationEnabled {
			result = append(result, *t)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (m *mockTeamRepo) Update(_ context.Context, team *model.Team) error {
	stored, ok := m.teams[team.TeamID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	team.Version = stored.Version + 1
	cp := *team
	m.teams[team.TeamID] = &cp
	return nil
}

func (m *mockTeamRepo) ApplyRotation(_ context.Context, teamID, engineerSlackID string, rotationIndex int) error {
	t, ok := m.teams[teamID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	t.OncallEngineer = engineerSlackID
	idx := rotationIndex
	t.CurrentRotationIndex = &idx
	return nil
}

func (m *mockTeamRepo) Deactivate(_ context.Context, id, deletedBy string) error {
	t, ok := m.teams[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	t.IsActive = false
	t.UpdatedBy = deletedBy
	return nil
}

// ── Mock TeamMembershipRepository ──

type mockMembershipRepo struct {
	members map[string]*model.TeamMembership
	seq     int
}

func newMockMembershipRepo() *mockMembershipRepo {
	return &mockMembershipRepo{members: make(map[string]*model.TeamMembership)}
}

func (m *mockMembershipRepo) Create(_ context.Context, mem *model.TeamMembership) error {
	if mem.MembershipID == "" {
		m.seq++
		mem.MembershipID = fmt.Sprintf("mem-%d", m.seq)
	}
	m.members[mem.MembershipID] = mem
	return nil
}

func (m *mockMembershipRepo) GetByID(_ context.Context, id string) (*model.TeamMembership, error) {
	if mem, ok := m.members[id]; ok {
		return mem, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockMembershipRepo) GetByTeamAndEngineer(_ context.Context, teamID, engineerSlackID string) (*model.TeamMembership, error) {
	for _, mem := range m.members {
		if mem.TeamID == teamID && mem.EngineerSlackID == engineerSlackID {
			return mem, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockMembershipRepo) ListByTeam(_ context.Context, teamID string) ([]model.TeamMembership, error) {
	var result []model.TeamMembership
	for _, mem := range m.members {
		if mem.TeamID == teamID {
			result = append(result, *mem)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].EngineerSlackID < result[j].EngineerSlackID
	})
	return result, nil
}

func (m *mockMembershipRepo) Update(_ context.Context, mem *model.TeamMembership) error {
	m.members[mem.MembershipID] = mem
	return nil
}

func (m *mockMembershipRepo) Delete(_ context.Context, id string) error {
	delete(m.members, id)
	return nil
}

// ── Mock ScheduleRepository ──

type mockScheduleRepo struct {
	schedules map[string]*model.OncallSchedule
	seq       int
}

func newMockScheduleRepo() *mockScheduleRepo {
	return &mockScheduleRepo{schedules: make(map[string]*model.OncallSchedule)}
}

func (m *mockScheduleRepo) Create(_ context.Context, s *model.OncallSchedule) error {
	if s.ScheduleID == "" {
		m.seq++
		s.ScheduleID = fmt.Sprintf("sched-%d", m.seq)
	}
	if s.Version == 0 {
		s.Version = 1
	}
	m.schedules[s.ScheduleID] = s
	return nil
}

func (m *mockScheduleRepo) GetByID(_ context.Context, id string) (*model.OncallSchedule, error) {
	if s, ok := m.schedules[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockScheduleRepo) ListByTeam(_ context.Context, teamID string, from, to *time.Time) ([]model.OncallSchedule, error) {
	var result []model.OncallSchedule
	for _, s := range m.schedules {
		if s.TeamID != teamID {
			continue
		}
		if from != nil && s.EndDate.Before(*from) {
			continue
		}
		if to != nil && s.StartDate.After(*to) {
			continue
		}
		result = append(result, *s)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StartDate.Before(result[j].StartDate) })
	return result, nil
}

func (m *mockScheduleRepo) ListCovering(_ context.Context, teamID string, date time.Time) ([]model.OncallSchedule, error) {
	d := model.DateOnly(date)
	var result []model.OncallSchedule
	for _, s := range m.schedules {
		if s.TeamID == teamID && !d.Before(model.DateOnly(s.StartDate)) && !d.After(model.DateOnly(s.EndDate)) {
			result = append(result, *s)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StartDate.After(result[j].StartDate) })
	return result, nil
}

func (m *mockScheduleRepo) CheckOverlap(_ context.Context, teamID string, start, end time.Time, excludeID string) (bool, error) {
	s0, e0 := model.DateOnly(start), model.DateOnly(end)
	for _, s := range m.schedules {
		if s.TeamID != teamID || s.ScheduleID == excludeID {
			continue
		}
		if !model.DateOnly(s.StartDate).After(e0) && !model.DateOnly(s.EndDate).Before(s0) {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockScheduleRepo) Update(_ context.Context, s *model.OncallSchedule) error {
	stored, ok := m.schedules[s.ScheduleID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	s.Version = stored.Version + 1
	cp := *s
	m.schedules[s.ScheduleID] = &cp
	return nil
}

func (m *mockScheduleRepo) Delete(_ context.Context, id string) error {
	delete(m.schedules, id)
	return nil
}

func (m *mockScheduleRepo) DeleteFutureAuto(_ context.Context, teamID string, after time.Time) error {
	a := model.DateOnly(after)
	for id, s := range m.schedules {
		if s.TeamID == teamID && s.Origin == model.ScheduleOriginAuto && model.DateOnly(s.StartDate).After(a) {
			delete(m.schedules, id)
		}
	}
	return nil
}

func (m *mockScheduleRepo) ShiftCounts(_ context.Context, teamID string, before time.Time) (map[string]int, error) {
	b := model.DateOnly(before)
	counts := make(map[string]int)
	for _, s := range m.schedules {
		if s.TeamID == teamID && model.DateOnly(s.EndDate).Before(b) {
			counts[s.EngineerSlackID]++
		}
	}
	return counts, nil
}

// ── Mock OverrideRepository ──

type mockOverrideRepo struct {
	overrides map[string]*model.OncallOverride
	seq       int
}

func newMockOverrideRepo() *mockOverrideRepo {
	return &mockOverrideRepo{overrides: make(map[string]*model.OncallOverride)}
}

func (m *mockOverrideRepo) Create(_ context.Context, o *model.OncallOverride) error {
	if o.OverrideID == "" {
		m.seq++
		o.OverrideID = fmt.Sprintf("ovr-%d", m.seq)
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().Add(time.Duration(m.seq) * time.Millisecond)
	}
	if o.Version == 0 {
		o.Version = 1
	}
	m.overrides[o.OverrideID] = o
	return nil
}

func (m *mockOverrideRepo) GetByID(_ context.Context, id string) (*model.OncallOverride, error) {
	if o, ok := m.overrides[id]; ok {
		cp := *o
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockOverrideRepo) ListByTeam(_ context.Context, teamID, status string, offset, limit int) ([]model.OncallOverride, int64, error) {
	var result []model.OncallOverride
	for _, o := range m.overrides {
		if o.TeamID == teamID && (status == "" || o.Status == status) {
			result = append(result, *o)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	total := int64(len(result))
	if offset >= len(result) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(result) {
		end = len(result)
	}
	return result[offset:end], total, nil
}

func (m *mockOverrideRepo) GetActive(_ context.Context, teamID string, date time.Time) (*model.OncallOverride, error) {
	var best *model.OncallOverride
	for _, o := range m.overrides {
		if o.TeamID != teamID || o.Status != model.OverrideStatusApproved || !o.Covers(date) {
			continue
		}
		if best == nil || o.CreatedAt.After(best.CreatedAt) {
			best = o
		}
	}
	if best == nil {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *best
	return &cp, nil
}

func (m *mockOverrideRepo) CheckOverlap(_ context.Context, teamID string, start, end time.Time, excludeID string) (bool, error) {
	s0, e0 := model.DateOnly(start), model.DateOnly(end)
	for _, o := range m.overrides {
		if o.TeamID != teamID || o.OverrideID == excludeID {
			continue
		}
		if o.Status != model.OverrideStatusPending && o.Status != model.OverrideStatusApproved {
			continue
		}
		if !model.DateOnly(o.OverrideDate).After(e0) && !o.EffectiveEnd().Before(s0) {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockOverrideRepo) Update(_ context.Context, o *model.OncallOverride) error {
	stored, ok := m.overrides[o.OverrideID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	o.Version = stored.Version + 1
	o.CreatedAt = stored.CreatedAt
	cp := *o
	m.overrides[o.OverrideID] = &cp
	return nil
}

// ── Mock HistoryRepository / AuditRepository ──

type mockHistoryRepo struct {
	entries []model.OncallHistory
}

func newMockHistoryRepo() *mockHistoryRepo { return &mockHistoryRepo{} }

func (m *mockHistoryRepo) Append(_ context.Context, entry *model.OncallHistory) error {
	if entry.HistoryID == "" {
		entry.HistoryID = fmt.Sprintf("hist-%d", len(m.entries)+1)
	}
	entry.CreatedAt = time.Now()
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *mockHistoryRepo) Latest(_ context.Context, teamID string) (*model.OncallHistory, error) {
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].TeamID == teamID {
			cp := m.entries[i]
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockHistoryRepo) ListByTeam(_ context.Context, teamID string, offset, limit int) ([]model.OncallHistory, int64, error) {
	var result []model.OncallHistory
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].TeamID == teamID {
			result = append(result, m.entries[i])
		}
	}
	total := int64(len(result))
	if offset >= len(result) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(result) {
		end = len(result)
	}
	return result[offset:end], total, nil
}

type mockAuditRepo struct {
	entries []model.AuditLog
}

func newMockAuditRepo() *mockAuditRepo { return &mockAuditRepo{} }

func (m *mockAuditRepo) Append(_ context.Context, entry *model.AuditLog) error {
	if entry.AuditID == "" {
		entry.AuditID = fmt.Sprintf("audit-%d", len(m.entries)+1)
	}
	entry.CreatedAt = time.Now()
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *mockAuditRepo) ListByEntity(_ context.Context, entityType, entityID string, offset, limit int) ([]model.AuditLog, int64, error) {
	var result []model.AuditLog
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].EntityType == entityType && m.entries[i].EntityID == entityID {
			result = append(result, m.entries[i])
		}
	}
	total := int64(len(result))
	if offset >= len(result) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(result) {
		end = len(result)
	}
	return result[offset:end], total, nil
}

// ── Mock UserRepository ──

type mockUserRepo struct {
	users map[string]*model.User
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[string]*model.User)}
}

func (m *mockUserRepo) Create(_ context.Context, user *model.User) error {
	if user.UserID == "" {
		user.UserID = "user-" + user.Username
	}
	m.users[user.UserID] = user
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockUserRepo) GetByUsername(_ context.Context, username string) (*model.User, error) {
	for _, u := range m.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockUserRepo) Update(_ context.Context, user *model.User) error {
	m.users[user.UserID] = user
	return nil
}

// ── Mock 协作方（目录 / 通知 / 锁）──

type mockDirectory struct {
	rosters  map[string][]string // slack_group_id → members
	names    map[string]string
	listErr  error
	listCall int
}

func newMockDirectory() *mockDirectory {
	return &mockDirectory{
		rosters: make(map[string][]string),
		names:   make(map[string]string),
	}
}

func (m *mockDirectory) ListRosterMembers(_ context.Context, groupID string) ([]string, error) {
	m.listCall++
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.rosters[groupID], nil
}

func (m *mockDirectory) ResolveDisplayName(_ context.Context, slackUserID string) string {
	if name, ok := m.names[slackUserID]; ok {
		return name
	}
	return slackUserID
}

type notifyCall struct {
	kind     string // assignment | rotation | decision
	engineer string
	extra    string
}

type mockNotifier struct {
	calls []notifyCall
	err   error
}

func newMockNotifier() *mockNotifier { return &mockNotifier{} }

func (m *mockNotifier) NotifyAssignment(_ context.Context, engineerSlackID, teamName string, _, _ time.Time, _ string, _ []int) error {
	m.calls = append(m.calls, notifyCall{kind: "assignment", engineer: engineerSlackID, extra: teamName})
	return m.err
}

func (m *mockNotifier) NotifyRotation(_ context.Context, incoming, outgoing, _ string, _ time.Time) error {
	m.calls = append(m.calls, notifyCall{kind: "rotation", engineer: incoming, extra: outgoing})
	return m.err
}

func (m *mockNotifier) NotifyOverrideDecision(_ context.Context, requesterSlackID, _, status, _ string) error {
	m.calls = append(m.calls, notifyCall{kind: "decision", engineer: requesterSlackID, extra: status})
	return m.err
}

type mockLocker struct {
	held     map[string]bool
	denyAll  bool
	acquired int
	released int
}

func newMockLocker() *mockLocker {
	return &mockLocker{held: make(map[string]bool)}
}

func (m *mockLocker) AcquireTeamLock(_ context.Context, teamID string, _ time.Duration) (bool, error) {
	if m.denyAll || m.held[teamID] {
		return false, nil
	}
	m.held[teamID] = true
	m.acquired++
	return true, nil
}

func (m *mockLocker) ReleaseTeamLock(_ context.Context, teamID string) error {
	delete(m.held, teamID)
	m.released++
	return nil
}

// ── 测试装配 ──

// newTestRepo 构造内存仓储聚合（无 db，Transaction 直接执行）
func newTestRepo() *repository.Repository {
	return &repository.Repository{
		User:       newMockUserRepo(),
		Team:       newMockTeamRepo(),
		Membership: newMockMembershipRepo(),
		Schedule:   newMockScheduleRepo(),
		Override:   newMockOverrideRepo(),
		History:    newMockHistoryRepo(),
		Audit:      newMockAuditRepo(),
	}
}
