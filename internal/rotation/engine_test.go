package rotation

import (
	"reflect"
	"testing"
	"time"

	"bugbot/backend/internal/model"
)

// ── 测试辅助 ──

func intPtr(n int) *int { return &n }

func datePtr(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func roundRobinTeam(idx *int, current string) *model.Team {
	return &model.Team{
		TeamID:               "team-1",
		RotationEnabled:      true,
		RotationType:         model.RotationTypeRoundRobin,
		RotationInterval:     model.RotationIntervalWeekly,
		OncallEngineer:       current,
		CurrentRotationIndex: idx,
	}
}

func weightedMembers() []model.TeamMembership {
	return []model.TeamMembership{
		{TeamID: "team-1", EngineerSlackID: "UA", IsEligibleForOncall: true, Weight: 2},
		{TeamID: "team-1", EngineerSlackID: "UB", IsEligibleForOncall: true, Weight: 1},
	}
}

// ════════════════════════════════════════════════════════════
// NextEngineer 测试
// ════════════════════════════════════════════════════════════

func TestNextEngineer_RoundRobin_Advance(t *testing.T) {
	team := roundRobinTeam(intPtr(0), "")
	st := StateFromTeam(team, nil)

	next := NextEngineer(team, st, []string{"A", "B", "C"}, nil, nil)
	if next != "B" {
		t.Errorf("索引0的下一任期望 B，实际=%s", next)
	}
}

func TestNextEngineer_RoundRobin_Wrap(t *testing.T) {
	team := roundRobinTeam(intPtr(2), "")
	st := StateFromTeam(team, nil)

	next := NextEngineer(team, st, []string{"A", "B", "C"}, nil, nil)
	if next != "A" {
		t.Errorf("索引2应回绕到 A，实际=%s", next)
	}
}

func TestNextEngineer_RoundRobin_CurrentEngineerOverridesIndex(t *testing.T) {
	// 当前值班人在列表中时，以其位置为游标，忽略已存储索引
	team := roundRobinTeam(intPtr(0), "C")
	st := StateFromTeam(team, nil)

	next := NextEngineer(team, st, []string{"A", "B", "C"}, nil, nil)
	if next != "A" {
		t.Errorf("当前值班人 C 的下一任应为 A，实际=%s", next)
	}
}

func TestNextEngineer_RoundRobin_FirstRotationStartsAtHead(t *testing.T) {
	// 从未轮换且无当前值班人：首次轮换从列表头开始
	team := roundRobinTeam(nil, "")
	st := StateFromTeam(team, nil)

	next := NextEngineer(team, st, []string{"U1", "U2"}, nil, nil)
	if next != "U1" {
		t.Errorf("首次轮换期望 U1，实际=%s", next)
	}
}

func TestNextEngineer_RoundRobin_EligibilityFilter(t *testing.T) {
	team := roundRobinTeam(intPtr(0), "A")
	st := StateFromTeam(team, nil)

	eligible := map[string]bool{"A": true, "C": true}
	next := NextEngineer(team, st, []string{"A", "B", "C"}, eligible, nil)
	if next != "C" {
		t.Errorf("过滤掉 B 后 A 的下一任应为 C，实际=%s", next)
	}
}

func TestNextEngineer_RoundRobin_EmptyPool(t *testing.T) {
	team := roundRobinTeam(intPtr(0), "")
	st := StateFromTeam(team, nil)

	if next := NextEngineer(team, st, nil, nil, nil); next != "" {
		t.Errorf("空 roster 应返回空串，实际=%s", next)
	}
	if next := NextEngineer(team, st, []string{"A"}, map[string]bool{}, nil); next != "" {
		t.Errorf("过滤后为空应返回空串，实际=%s", next)
	}
}

func TestNextEngineer_CustomOrder_Wrap(t *testing.T) {
	team := &model.Team{
		RotationEnabled:      true,
		RotationType:         model.RotationTypeCustomOrder,
		RotationOrder:        model.StringArray{"A", "B", "C"},
		CurrentRotationIndex: intPtr(2),
	}
	st := StateFromTeam(team, nil)

	next := NextEngineer(team, st, nil, nil, nil)
	if next != "A" {
		t.Errorf("custom_order 索引2应回绕到 A，实际=%s", next)
	}
}

func TestNextEngineer_CustomOrder_EmptyOrder(t *testing.T) {
	team := &model.Team{
		RotationEnabled: true,
		RotationType:    model.RotationTypeCustomOrder,
	}
	st := StateFromTeam(team, nil)

	if next := NextEngineer(team, st, nil, nil, nil); next != "" {
		t.Errorf("空 rotation_order 应返回空串，实际=%s", next)
	}
}

func TestNextEngineer_Weighted_FirstRun(t *testing.T) {
	// 首轮无任何班次记录：目标占比高者（UA=2/3）胜出
	team := &model.Team{
		RotationEnabled: true,
		RotationType:    model.RotationTypeWeighted,
	}
	st := StateFromTeam(team, map[string]int{})

	next := NextEngineer(team, st, nil, nil, weightedMembers())
	if next != "UA" {
		t.Errorf("首轮加权选择期望 UA，实际=%s", next)
	}
}

func TestNextEngineer_Weighted_CorrectsTowardTarget(t *testing.T) {
	// UA 实际占比已达目标而 UB 未达：必须选 UB
	team := &model.Team{
		RotationEnabled: true,
		RotationType:    model.RotationTypeWeighted,
	}
	st := StateFromTeam(team, map[string]int{"UA": 3})

	next := NextEngineer(team, st, nil, nil, weightedMembers())
	if next != "UB" {
		t.Errorf("UA 超额后期望选 UB，实际=%s", next)
	}
}

func TestNextEngineer_Weighted_TieBreakByShiftsThenID(t *testing.T) {
	team := &model.Team{
		RotationEnabled: true,
		RotationType:    model.RotationTypeWeighted,
	}
	members := []model.TeamMembership{
		{EngineerSlackID: "UB", IsEligibleForOncall: true, Weight: 1},
		{EngineerSlackID: "UA", IsEligibleForOncall: true, Weight: 1},
	}

	// 差值与班次数全部并列：按 ID 升序取 UA
	st := StateFromTeam(team, map[string]int{"UA": 1, "UB": 1})
	if next := NextEngineer(team, st, nil, nil, members); next != "UA" {
		t.Errorf("全并列时应按 ID 升序选 UA，实际=%s", next)
	}

	// 差值并列但 UB 班次更少：选 UB
	st = StateFromTeam(team, map[string]int{})
	st.ShiftCounts = map[string]int{"UA": 2, "UB": 0}
	if next := NextEngineer(team, st, nil, nil, members); next != "UB" {
		t.Errorf("期望班次较少的 UB，实际=%s", next)
	}
}

func TestNextEngineer_Weighted_NoEligibleOrZeroWeight(t *testing.T) {
	team := &model.Team{
		RotationEnabled: true,
		RotationType:    model.RotationTypeWeighted,
	}
	st := StateFromTeam(team, nil)

	members := []model.TeamMembership{
		{EngineerSlackID: "UA", IsEligibleForOncall: false, Weight: 2},
	}
	if next := NextEngineer(team, st, nil, nil, members); next != "" {
		t.Errorf("无合格成员应返回空串，实际=%s", next)
	}
}

func TestNextEngineer_DisabledOrNone(t *testing.T) {
	team := roundRobinTeam(intPtr(0), "")
	team.RotationEnabled = false
	st := StateFromTeam(team, nil)
	if next := NextEngineer(team, st, []string{"A", "B"}, nil, nil); next != "" {
		t.Errorf("轮换停用时应返回空串，实际=%s", next)
	}

	team2 := &model.Team{RotationEnabled: true, RotationType: model.RotationTypeNone}
	if next := NextEngineer(team2, StateFromTeam(team2, nil), []string{"A"}, nil, nil); next != "" {
		t.Errorf("策略 none 应返回空串，实际=%s", next)
	}
}

// ════════════════════════════════════════════════════════════
// ShouldRotate 测试
// ════════════════════════════════════════════════════════════

func TestShouldRotate_BeforeStartDate(t *testing.T) {
	team := roundRobinTeam(nil, "")
	team.RotationStartDate = datePtr(2026, 3, 2)

	if ShouldRotate(team, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Error("起始日之前不应触发轮换")
	}
}

func TestShouldRotate_FirstRotationAlwaysDue(t *testing.T) {
	team := roundRobinTeam(nil, "")
	team.RotationStartDate = datePtr(2026, 3, 2)

	if !ShouldRotate(team, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)) {
		t.Error("从未轮换的团队过了起始日应触发")
	}
}

func TestShouldRotate_NoDoubleTriggerWithinPeriod(t *testing.T) {
	// 索引已达期望槽位后，同一周期内不再触发
	team := &model.Team{
		RotationEnabled:      true,
		RotationType:         model.RotationTypeCustomOrder,
		RotationOrder:        model.StringArray{"A", "B", "C"},
		RotationInterval:     model.RotationIntervalWeekly,
		RotationStartDate:    datePtr(2026, 3, 2),
		CurrentRotationIndex: intPtr(1),
	}

	// 2026-03-09 起第2周期（elapsed=1, 1%3=1 == index）
	for day := 9; day <= 15; day++ {
		if ShouldRotate(team, time.Date(2026, 3, day, 0, 0, 0, 0, time.UTC)) {
			t.Errorf("3月%d日处于已应用的周期内，不应触发", day)
		}
	}

	// 下一周期边界（elapsed=2, 2%3=2 != 1）应再次触发
	if !ShouldRotate(team, time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)) {
		t.Error("进入新周期后应触发轮换")
	}
}

func TestShouldRotate_HandoffDayGate(t *testing.T) {
	team := roundRobinTeam(nil, "")
	team.RotationStartDate = datePtr(2026, 3, 2)
	team.HandoffDay = intPtr(0) // 仅周一

	// 2026-03-04 是周三
	if ShouldRotate(team, time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)) {
		t.Error("非交接日不应触发")
	}
	// 2026-03-09 是周一
	if !ShouldRotate(team, time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)) {
		t.Error("交接日应触发")
	}
}

func TestShouldRotate_DisabledOrNoStartDate(t *testing.T) {
	team := roundRobinTeam(nil, "")
	if ShouldRotate(team, time.Now()) {
		t.Error("无起始日不应触发")
	}

	team.RotationStartDate = datePtr(2026, 1, 1)
	team.RotationEnabled = false
	if ShouldRotate(team, time.Now()) {
		t.Error("轮换停用不应触发")
	}
}

func TestShouldRotate_BiweeklyInterval(t *testing.T) {
	team := &model.Team{
		RotationEnabled:      true,
		RotationType:         model.RotationTypeCustomOrder,
		RotationOrder:        model.StringArray{"A", "B"},
		RotationInterval:     model.RotationIntervalBiweekly,
		RotationStartDate:    datePtr(2026, 3, 2),
		CurrentRotationIndex: intPtr(0),
	}

	// 第13天仍在首个双周周期内
	if ShouldRotate(team, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)) {
		t.Error("双周周期未满不应触发")
	}
	// 第14天进入第2周期（1%2=1 != 0）
	if !ShouldRotate(team, time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)) {
		t.Error("双周边界应触发")
	}
}

// ════════════════════════════════════════════════════════════
// Lookahead 测试
// ════════════════════════════════════════════════════════════

func TestLookahead_RoundRobin_Boundaries(t *testing.T) {
	team := roundRobinTeam(intPtr(0), "A")
	team.RotationStartDate = datePtr(2026, 3, 2)
	st := StateFromTeam(team, nil)

	today := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	periods := Lookahead(team, st, []string{"A", "B", "C"}, nil, nil, 3, today)

	if len(periods) != 3 {
		t.Fatalf("期望3个周期，实际=%d", len(periods))
	}
	// 严格晚于 today 的下一个周期边界：2026-03-16
	wantStart := time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)
	if !periods[0].Start.Equal(wantStart) {
		t.Errorf("首周期起点期望 %v，实际=%v", wantStart, periods[0].Start)
	}
	if !periods[0].End.Equal(wantStart.AddDate(0, 0, 6)) {
		t.Errorf("首周期终点期望 %v，实际=%v", wantStart.AddDate(0, 0, 6), periods[0].End)
	}
	// 模拟状态逐周期推进：A → B → C → A
	want := []string{"B", "C", "A"}
	for i, p := range periods {
		if p.EngineerID != want[i] {
			t.Errorf("周期%d 期望 %s，实际=%s", i, want[i], p.EngineerID)
		}
	}
}

func TestLookahead_FutureStartDate(t *testing.T) {
	team := roundRobinTeam(nil, "")
	team.RotationStartDate = datePtr(2026, 4, 6)
	st := StateFromTeam(team, nil)

	today := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	periods := Lookahead(team, st, []string{"U1", "U2"}, nil, nil, 2, today)

	if len(periods) != 2 {
		t.Fatalf("期望2个周期，实际=%d", len(periods))
	}
	if !periods[0].Start.Equal(time.Date(2026, 4, 6, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("起始日在未来时首周期应从起始日开始，实际=%v", periods[0].Start)
	}
	if periods[0].EngineerID != "U1" {
		t.Errorf("首次轮换期望 U1，实际=%s", periods[0].EngineerID)
	}
}

func TestLookahead_Weighted_AnticipatesEarlierPeriods(t *testing.T) {
	team := &model.Team{
		RotationEnabled:   true,
		RotationType:      model.RotationTypeWeighted,
		RotationInterval:  model.RotationIntervalWeekly,
		RotationStartDate: datePtr(2026, 3, 2),
	}
	st := StateFromTeam(team, map[string]int{})

	today := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	periods := Lookahead(team, st, nil, nil, weightedMembers(), 4, today)

	if len(periods) != 4 {
		t.Fatalf("期望4个周期，实际=%d", len(periods))
	}
	// 权重 2:1 下模拟计数累积：UA → UB → UA → UB
	want := []string{"UA", "UB", "UA", "UB"}
	for i, p := range periods {
		if p.EngineerID != want[i] {
			t.Errorf("周期%d 期望 %s，实际=%s", i, want[i], p.EngineerID)
		}
	}
}

func TestLookahead_Deterministic(t *testing.T) {
	team := roundRobinTeam(intPtr(1), "B")
	team.RotationStartDate = datePtr(2026, 3, 2)
	st := StateFromTeam(team, nil)
	today := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)

	a := Lookahead(team, st, []string{"A", "B", "C"}, nil, nil, 4, today)
	b := Lookahead(team, st, []string{"A", "B", "C"}, nil, nil, 4, today)
	if !reflect.DeepEqual(a, b) {
		t.Error("相同输入的两次 Lookahead 结果应一致")
	}
}

func TestLookahead_DoesNotMutateInputs(t *testing.T) {
	team := &model.Team{
		RotationEnabled:      true,
		RotationType:         model.RotationTypeWeighted,
		RotationInterval:     model.RotationIntervalWeekly,
		RotationStartDate:    datePtr(2026, 3, 2),
		CurrentRotationIndex: intPtr(1),
		OncallEngineer:       "UA",
	}
	counts := map[string]int{"UA": 1}
	st := StateFromTeam(team, counts)

	Lookahead(team, st, nil, nil, weightedMembers(), 4, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC))

	if *team.CurrentRotationIndex != 1 || team.OncallEngineer != "UA" {
		t.Error("Lookahead 不应修改团队实体")
	}
	if counts["UA"] != 1 || len(counts) != 1 {
		t.Errorf("Lookahead 不应修改传入的班次计数: %v", counts)
	}
}

func TestLookahead_StopsWhenNoCandidate(t *testing.T) {
	team := &model.Team{
		RotationEnabled:   true,
		RotationType:      model.RotationTypeCustomOrder,
		RotationStartDate: datePtr(2026, 3, 2),
		RotationInterval:  model.RotationIntervalWeekly,
	}
	st := StateFromTeam(team, nil)

	periods := Lookahead(team, st, nil, nil, nil, 4, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC))
	if len(periods) != 0 {
		t.Errorf("空 rotation_order 应返回空结果，实际=%d 个周期", len(periods))
	}
}
