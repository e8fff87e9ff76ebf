package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"bugbot/backend/internal/model"
	"bugbot/backend/internal/repository"
)

// ── 导出模块业务错误 ──

var (
	ErrExportNoSchedules  = errors.New("该团队暂无排班数据")
	ErrExportGenerateFail = errors.New("生成导出文件失败")
)

// ExportService 导出业务接口
//
// 设计说明：
//   - 排班表导出为 Excel (.xlsx)：明细 Sheet + 班次统计 Sheet
//   - 排班表导出为 ICS 日历：每条排班一个全天事件，可订阅到日历客户端
//   - 导出以 bytes.Buffer 返回，由 Handler 层设置 HTTP 响应头后写入 Response
type ExportService interface {
	// ExportScheduleExcel 导出团队排班为 Excel
	ExportScheduleExcel(ctx context.Context, teamID string, from, to *time.Time) (*bytes.Buffer, string, error)
	// ExportScheduleICS 导出团队排班为 ICS 日历
	ExportScheduleICS(ctx context.Context, teamID string, from, to *time.Time) (*bytes.Buffer, string, error)
}

type exportService struct {
	repo      *repository.Repository
	directory DirectoryClient
	logger    *zap.Logger
}

// NewExportService 创建 ExportService 实例
func NewExportService(repo *repository.Repository, directory DirectoryClient, logger *zap.Logger) ExportService {
	return &exportService{repo: repo, directory: directory, logger: logger}
}

func (s *exportService) loadSchedules(ctx context.Context, teamID string, from, to *time.Time) (*model.Team, []model.OncallSchedule, error) {
	team, err := s.repo.Team.GetByID(ctx, teamID)
	if err != nil {
		return nil, nil, ErrTeamNotFound
	}
	schedules, err := s.repo.Schedule.ListByTeam(ctx, teamID, from, to)
	if err != nil {
		s.logger.Error("查询排班失败", zap.Error(err), zap.String("team_id", teamID))
		return nil, nil, err
	}
	if len(schedules) == 0 {
		return nil, nil, ErrExportNoSchedules
	}
	return team, schedules, nil
}

func (s *exportService) displayName(ctx context.Context, slackID string) string {
	if s.directory != nil {
		return s.directory.ResolveDisplayName(ctx, slackID)
	}
	return slackID
}

// ═══════════════════════════════════════════════════════════
// ExportScheduleExcel — 导出排班表为 Excel
// ═══════════════════════════════════════════════════════════
//
// 输出格式：
//   - Sheet "排班明细"：| 值班人 | Slack ID | 开始 | 结束 | 类型 | 来源 |
//   - Sheet "班次统计"：| 值班人 | Slack ID | 班次数 |
//
// 返回值：buf（Excel 内容）, filename（建议文件名）, error

func (s *exportService) ExportScheduleExcel(ctx context.Context, teamID string, from, to *time.Time) (*bytes.Buffer, string, error) {
	team, schedules, err := s.loadSchedules(ctx, teamID, from, to)
	if err != nil {
		return nil, "", err
	}

	f := excelize.NewFile()
	defer f.Close()

	detailSheet := "排班明细"
	idx, _ := f.NewSheet(detailSheet)
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")

	f.SetColWidth(detailSheet, "A", "B", 18)
	f.SetColWidth(detailSheet, "C", "D", 14)
	f.SetColWidth(detailSheet, "E", "F", 10)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})

	// 标题行
	f.SetCellValue(detailSheet, "A1", fmt.Sprintf("%s — 值班排班表", team.Name))
	f.MergeCell(detailSheet, "A1", "F1")
	f.SetCellStyle(detailSheet, "A1", "A1", headerStyle)

	// 表头
	headers := []string{"值班人", "Slack ID", "开始日期", "结束日期", "类型", "来源"}
	for i, h := range headers {
		f.SetCellValue(detailSheet, cell(colName(i), 2), h)
	}

	// 数据行 + 班次统计
	shiftCounts := make(map[string]int)
	row := 3
	for _, sched := range schedules {
		f.SetCellValue(detailSheet, cell("A", row), s.displayName(ctx, sched.EngineerSlackID))
		f.SetCellValue(detailSheet, cell("B", row), sched.EngineerSlackID)
		f.SetCellValue(detailSheet, cell("C", row), sched.StartDate.Format("2006-01-02"))
		f.SetCellValue(detailSheet, cell("D", row), sched.EndDate.Format("2006-01-02"))
		f.SetCellValue(detailSheet, cell("E", row), sched.ScheduleType)
		f.SetCellValue(detailSheet, cell("F", row), sched.Origin)
		shiftCounts[sched.EngineerSlackID]++
		row++
	}

	// 班次统计 Sheet（按班次数降序，同数按 ID 升序）
	summarySheet := "班次统计"
	f.NewSheet(summarySheet)
	f.SetColWidth(summarySheet, "A", "B", 18)
	f.SetColWidth(summarySheet, "C", "C", 10)
	f.SetCellValue(summarySheet, "A1", "值班人")
	f.SetCellValue(summarySheet, "B1", "Slack ID")
	f.SetCellValue(summarySheet, "C1", "班次数")

	ids := make([]string, 0, len(shiftCounts))
	for id := range shiftCounts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if shiftCounts[ids[i]] != shiftCounts[ids[j]] {
			return shiftCounts[ids[i]] > shiftCounts[ids[j]]
		}
		return ids[i] < ids[j]
	})
	for i, id := range ids {
		f.SetCellValue(summarySheet, cell("A", 2+i), s.displayName(ctx, id))
		f.SetCellValue(summarySheet, cell("B", 2+i), id)
		f.SetCellValue(summarySheet, cell("C", 2+i), shiftCounts[id])
	}

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		s.logger.Error("写入 Excel 失败", zap.Error(err))
		return nil, "", ErrExportGenerateFail
	}

	filename := fmt.Sprintf("值班排班_%s.xlsx", team.Name)
	return buf, filename, nil
}

// ═══════════════════════════════════════════════════════════
// ExportScheduleICS — 导出排班表为 ICS 日历
// ═══════════════════════════════════════════════════════════

func (s *exportService) ExportScheduleICS(ctx context.Context, teamID string, from, to *time.Time) (*bytes.Buffer, string, error) {
	team, schedules, err := s.loadSchedules(ctx, teamID, from, to)
	if err != nil {
		return nil, "", err
	}

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//bugbot//oncall//CN")
	cal.SetName(fmt.Sprintf("%s 值班表", team.Name))

	for _, sched := range schedules {
		event := cal.AddEvent(fmt.Sprintf("%s@bugbot", sched.ScheduleID))
		event.SetCreatedTime(sched.CreatedAt)
		event.SetDtStampTime(sched.CreatedAt)
		event.SetAllDayStartAt(model.DateOnly(sched.StartDate))
		// DTEND 为排他日期，闭区间结束日需 +1 天
		event.SetAllDayEndAt(model.DateOnly(sched.EndDate).AddDate(0, 0, 1))
		event.SetSummary(fmt.Sprintf("%s 值班：%s",
			team.Name, s.displayName(ctx, sched.EngineerSlackID)))
		event.SetDescription(fmt.Sprintf("Slack: %s / 类型: %s / 来源: %s",
			sched.EngineerSlackID, sched.ScheduleType, sched.Origin))
	}

	buf := bytes.NewBufferString(cal.Serialize())
	filename := fmt.Sprintf("值班排班_%s.ics", team.Name)
	return buf, filename, nil
}

// ── 辅助函数 ──

func colName(idx int) string {
	name, _ := excelize.ColumnNumberToName(idx + 1)
	return name
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}
