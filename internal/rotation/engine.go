// Package rotation 实现值班轮换的纯计算引擎：
// 下一任值班人选择、轮换触发判定、未来周期预测。
// 本包不做任何 I/O，也不修改传入的持久化实体。
package rotation

import (
	"sort"
	"time"

	"bugbot/backend/internal/model"
)

// Strategy 轮换策略（封闭枚举，按变体分派）
type Strategy int

const (
	StrategyNone Strategy = iota
	StrategyRoundRobin
	StrategyCustomOrder
	StrategyWeighted
)

// ParseStrategy 将 rotation_type 列值解析为策略枚举
// 未知取值按 none 处理（调用方视为"轮换不适用"）。
func ParseStrategy(s string) Strategy {
	switch s {
	case model.RotationTypeRoundRobin:
		return StrategyRoundRobin
	case model.RotationTypeCustomOrder:
		return StrategyCustomOrder
	case model.RotationTypeWeighted:
		return StrategyWeighted
	default:
		return StrategyNone
	}
}

// State 轮换状态的不可变值对象
// 模拟（Lookahead）中逐周期函数式传递，不回写任何实体。
type State struct {
	CurrentEngineer string
	CurrentIndex    *int           // nil 表示从未轮换
	ShiftCounts     map[string]int // 各工程师已完成班次数
}

// StateFromTeam 从团队实体快照出轮换状态（shiftCounts 由调用方提供）
func StateFromTeam(team *model.Team, shiftCounts map[string]int) State {
	st := State{
		CurrentEngineer: team.OncallEngineer,
		ShiftCounts:     shiftCounts,
	}
	if team.CurrentRotationIndex != nil {
		idx := *team.CurrentRotationIndex
		st.CurrentIndex = &idx
	}
	return st
}

// advance 返回应用一次轮换后的新状态（原状态不变）
func (st State) advance(next string, pool []string) State {
	idx := 0
	for i, id := range pool {
		if id == next {
			idx = i
			break
		}
	}
	counts := make(map[string]int, len(st.ShiftCounts)+1)
	for k, v := range st.ShiftCounts {
		counts[k] = v
	}
	counts[next]++
	return State{CurrentEngineer: next, CurrentIndex: &idx, ShiftCounts: counts}
}

// PeriodDays 轮换周期对应的天数
func PeriodDays(interval string) int {
	switch interval {
	case model.RotationIntervalDaily:
		return 1
	case model.RotationIntervalBiweekly:
		return 14
	default:
		return 7
	}
}

// NextEngineer 按团队策略计算下一任值班人
//
//   - roster: 目录返回的有序成员列表（round_robin 使用）
//   - eligible: 非 nil 时对 roster 做资格过滤（round_robin 使用）
//   - members: 团队成员配置（weighted 使用）
//
// 返回空字符串表示策略不适用或无候选人。
func NextEngineer(team *model.Team, st State, roster []string, eligible map[string]bool, members []model.TeamMembership) string {
	if !team.RotationEnabled {
		return ""
	}

	switch ParseStrategy(team.RotationType) {
	case StrategyRoundRobin:
		return nextRoundRobin(st, roster, eligible)
	case StrategyCustomOrder:
		return nextCustomOrder(st, team.RotationOrder)
	case StrategyWeighted:
		return nextWeighted(st, members)
	default:
		return ""
	}
}

// nextRoundRobin 游标取当前值班人在过滤后列表中的位置，
// 不在列表中时回退到已存储的轮换索引；从未轮换且无当前值班人时
// 游标为 -1，即首次轮换从列表头开始。
func nextRoundRobin(st State, roster []string, eligible map[string]bool) string {
	pool := roster
	if eligible != nil {
		pool = make([]string, 0, len(roster))
		for _, id := range roster {
			if eligible[id] {
				pool = append(pool, id)
			}
		}
	}
	if len(pool) == 0 {
		return ""
	}

	cursor := -1
	if st.CurrentIndex != nil {
		cursor = *st.CurrentIndex
	}
	if st.CurrentEngineer != "" {
		for i, id := range pool {
			if id == st.CurrentEngineer {
				cursor = i
				break
			}
		}
	}
	return pool[(cursor+1)%len(pool)]
}

func nextCustomOrder(st State, order []string) string {
	if len(order) == 0 {
		return ""
	}
	cursor := 0
	if st.CurrentIndex != nil {
		cursor = *st.CurrentIndex
	}
	return order[(cursor+1)%len(order)]
}

// nextWeighted 贪心公平调度：选取"目标占比 − 实际占比"差值最大的候选人。
// 并列时先比已完成班次数（少者优先），再按工程师 ID 升序，保证确定性。
// 该算法向配置比例逐步修正，不保证任意有限窗口内精确达到配置比例。
func nextWeighted(st State, members []model.TeamMembership) string {
	candidates := make([]model.TeamMembership, 0, len(members))
	totalWeight := 0.0
	for _, m := range members {
		if m.IsEligibleForOncall {
			candidates = append(candidates, m)
			totalWeight += m.Weight
		}
	}
	if len(candidates) == 0 || totalWeight <= 0 {
		return ""
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].EngineerSlackID < candidates[j].EngineerSlackID
	})

	totalShifts := 0
	for _, m := range candidates {
		totalShifts += st.ShiftCounts[m.EngineerSlackID]
	}

	best := ""
	bestGap := 0.0
	bestShifts := 0
	for _, m := range candidates {
		shifts := st.ShiftCounts[m.EngineerSlackID]
		actual := 0.0
		if totalShifts > 0 {
			actual = float64(shifts) / float64(totalShifts)
		}
		gap := m.Weight/totalWeight - actual

		if best == "" || gap > bestGap || (gap == bestGap && shifts < bestShifts) {
			best = m.EngineerSlackID
			bestGap = gap
			bestShifts = shifts
		}
	}
	return best
}

// ShouldRotate 判断指定日期是否应触发轮换
//
// 首次轮换（current_rotation_index 为 nil）只要过了起始日即触发；
// 之后仅当已存储的索引落后于当前周期的期望槽位时触发，
// 同一周期内不会重复触发。
func ShouldRotate(team *model.Team, checkDate time.Time) bool {
	if !team.RotationEnabled || team.RotationStartDate == nil {
		return false
	}

	d := model.DateOnly(checkDate)
	start := model.DateOnly(*team.RotationStartDate)
	if d.Before(start) {
		return false
	}

	// 交接日门控：仅允许在指定星期触发
	if team.HandoffDay != nil && model.WeekdayIndex(d) != *team.HandoffDay {
		return false
	}

	if team.CurrentRotationIndex == nil {
		return true
	}

	elapsedDays := int(d.Sub(start).Hours() / 24)
	elapsedPeriods := elapsedDays / PeriodDays(team.RotationInterval)

	poolSize := len(team.RotationOrder)
	if poolSize == 0 {
		poolSize = 1
	}
	return elapsedPeriods%poolSize != *team.CurrentRotationIndex
}

// Period Lookahead 输出的单个预测周期
type Period struct {
	Index      int       `json:"period_index"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	EngineerID string    `json:"engineer_id"`
}

// Lookahead 纯模拟未来 periods 个周期的值班人选
//
// 起始游标为严格晚于 today 的下一个周期边界（起始日尚在未来时
// 即为起始日本身）。每步针对模拟状态调用 NextEngineer，weighted
// 策略下班次计数随模拟累积，后续周期能正确感知前序预测结果。
// 策略在某一步无法给出人选时，返回已构建的周期。
func Lookahead(team *model.Team, st State, roster []string, eligible map[string]bool, members []model.TeamMembership, periods int, today time.Time) []Period {
	if team.RotationStartDate == nil || periods <= 0 {
		return nil
	}

	start := model.DateOnly(*team.RotationStartDate)
	d := model.DateOnly(today)
	periodDays := PeriodDays(team.RotationInterval)

	cursor := start
	if !start.After(d) {
		elapsedDays := int(d.Sub(start).Hours() / 24)
		k := elapsedDays/periodDays + 1
		cursor = start.AddDate(0, 0, k*periodDays)
	}

	pool := rotationPool(team, roster, eligible, members)
	result := make([]Period, 0, periods)
	for i := 0; i < periods; i++ {
		next := NextEngineer(team, st, roster, eligible, members)
		if next == "" {
			break
		}
		result = append(result, Period{
			Index:      i,
			Start:      cursor,
			End:        cursor.AddDate(0, 0, periodDays-1),
			EngineerID: next,
		})
		st = st.advance(next, pool)
		cursor = cursor.AddDate(0, 0, periodDays)
	}
	return result
}

// rotationPool 策略对应的索引池（advance 时计算新索引用）
func rotationPool(team *model.Team, roster []string, eligible map[string]bool, members []model.TeamMembership) []string {
	switch ParseStrategy(team.RotationType) {
	case StrategyCustomOrder:
		return team.RotationOrder
	case StrategyWeighted:
		pool := make([]string, 0, len(members))
		for _, m := range members {
			if m.IsEligibleForOncall {
				pool = append(pool, m.EngineerSlackID)
			}
		}
		sort.Strings(pool)
		return pool
	default:
		if eligible == nil {
			return roster
		}
		pool := make([]string, 0, len(roster))
		for _, id := range roster {
			if eligible[id] {
				pool = append(pool, id)
			}
		}
		return pool
	}
}

// PoolIndexOf 计算工程师在策略池中的索引（不在池中时为 0）
// 应用轮换后团队的 current_rotation_index 即该值。
func PoolIndexOf(team *model.Team, roster []string, eligible map[string]bool, members []model.TeamMembership, engineerID string) int {
	for i, id := range rotationPool(team, roster, eligible, members) {
		if id == engineerID {
			return i
		}
	}
	return 0
}
