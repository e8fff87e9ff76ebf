// Package slack 封装 Slack Web API，提供目录查询与值班通知能力。
// 所有通知均为尽力而为：失败由调用方记录日志，不影响业务写入。
package slack

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	slackapi "github.com/slack-go/slack"
	"go.uber.org/zap"

	"bugbot/backend/config"
)

// 周一=0 的星期名（days_of_week 展示用）
var weekdayNames = []string{"周一", "周二", "周三", "周四", "周五", "周六", "周日"}

// Client Slack Web API 客户端
// 实现 service.DirectoryClient 与 service.NotificationClient。
type Client struct {
	api            *slackapi.Client
	defaultChannel string
	logger         *zap.Logger

	mu        sync.RWMutex
	nameCache map[string]string // slack_user_id → display name
}

// NewClient 创建 Slack 客户端；Token 未配置时返回 nil（调用方按未启用处理）
func NewClient(cfg *config.SlackConfig, logger *zap.Logger) *Client {
	if !cfg.Configured() {
		return nil
	}
	return &Client{
		api:            slackapi.New(cfg.BotToken),
		defaultChannel: cfg.DefaultChannel,
		logger:         logger,
		nameCache:      make(map[string]string),
	}
}

// ── 目录查询 ──

// ListRosterMembers 返回用户组的有序成员 ID 列表
// Slack API 返回顺序稳定，round_robin 策略依赖此顺序作为轮换池。
func (c *Client) ListRosterMembers(ctx context.Context, groupID string) ([]string, error) {
	members, err := c.api.GetUserGroupMembersContext(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("获取用户组成员失败: %w", err)
	}
	return members, nil
}

// ResolveDisplayName 解析展示名，失败时回退为原始 ID
func (c *Client) ResolveDisplayName(ctx context.Context, slackUserID string) string {
	if slackUserID == "" {
		return ""
	}
	c.mu.RLock()
	if name, ok := c.nameCache[slackUserID]; ok {
		c.mu.RUnlock()
		return name
	}
	c.mu.RUnlock()

	user, err := c.api.GetUserInfoContext(ctx, slackUserID)
	if err != nil {
		c.logger.Warn("查询 Slack 用户信息失败", zap.Error(err), zap.String("user_id", slackUserID))
		return slackUserID
	}
	name := user.Profile.DisplayName
	if name == "" {
		name = user.RealName
	}
	if name == "" {
		name = slackUserID
	}

	c.mu.Lock()
	c.nameCache[slackUserID] = name
	c.mu.Unlock()
	return name
}

// ── 通知 ──

// NotifyAssignment 排班生效时私信值班人
func (c *Client) NotifyAssignment(ctx context.Context, engineerSlackID, teamName string, start, end time.Time, scheduleType string, daysOfWeek []int) error {
	text := fmt.Sprintf(":calendar: 你被安排为 *%s* 的值班人\n时间：%s ~ %s",
		teamName, start.Format("2006-01-02"), end.Format("2006-01-02"))
	if scheduleType == "daily" && len(daysOfWeek) > 0 {
		names := make([]string, 0, len(daysOfWeek))
		for _, d := range daysOfWeek {
			if d >= 0 && d < len(weekdayNames) {
				names = append(names, weekdayNames[d])
			}
		}
		text += fmt.Sprintf("（仅 %s）", strings.Join(names, "、"))
	}
	return c.postDM(ctx, engineerSlackID, text)
}

// NotifyRotation 轮换完成后在团队频道公告交接
func (c *Client) NotifyRotation(ctx context.Context, incoming, outgoing, channel string, effectiveDate time.Time) error {
	if channel == "" {
		channel = c.defaultChannel
	}
	if channel == "" {
		// 未配置频道时退化为私信新值班人
		return c.postDM(ctx, incoming,
			fmt.Sprintf(":rotating_light: 自 %s 起由你值班", effectiveDate.Format("2006-01-02")))
	}

	text := fmt.Sprintf(":rotating_light: 值班轮换：自 %s 起由 <@%s> 值班",
		effectiveDate.Format("2006-01-02"), incoming)
	if outgoing != "" {
		text += fmt.Sprintf("（接替 <@%s>）", outgoing)
	}
	_, _, err := c.api.PostMessageContext(ctx, channel,
		slackapi.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("发送轮换公告失败: %w", err)
	}
	return nil
}

// NotifyOverrideDecision 覆盖审批结果私信申请人
func (c *Client) NotifyOverrideDecision(ctx context.Context, requesterSlackID, substituteSlackID, status, reason string) error {
	var text string
	switch status {
	case "approved":
		text = fmt.Sprintf(":white_check_mark: 值班覆盖申请已批准，代班人 <@%s>", substituteSlackID)
	case "rejected":
		text = fmt.Sprintf(":x: 值班覆盖申请已拒绝（代班人 <@%s>）", substituteSlackID)
	case "cancelled":
		text = fmt.Sprintf(":leftwards_arrow_with_hook: 值班覆盖已取消（代班人 <@%s>）", substituteSlackID)
	default:
		text = fmt.Sprintf("值班覆盖申请状态更新为 %s", status)
	}
	if reason != "" {
		text += "\n原因：" + reason
	}
	return c.postDM(ctx, requesterSlackID, text)
}

// postDM 打开与用户的会话并发送消息
func (c *Client) postDM(ctx context.Context, userID, text string) error {
	if userID == "" {
		return nil
	}
	channel, _, _, err := c.api.OpenConversationContext(ctx, &slackapi.OpenConversationParameters{
		Users: []string{userID},
	})
	if err != nil {
		return fmt.Errorf("打开私信会话失败: %w", err)
	}
	_, _, err = c.api.PostMessageContext(ctx, channel.ID,
		slackapi.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("发送私信失败: %w", err)
	}
	return nil
}
