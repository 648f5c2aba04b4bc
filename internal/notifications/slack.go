package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/Harvey-AU/seo-parser/internal/crawler"
	"github.com/Harvey-AU/seo-parser/internal/runs"
	"github.com/rs/zerolog/log"
	"github.com/slack-go/slack"
)

// NotificationType identifies what happened to a run
type NotificationType string

const (
	NotificationRunComplete  NotificationType = "run_complete"
	NotificationRunFailed    NotificationType = "run_failed"
	NotificationRunCancelled NotificationType = "run_cancelled"
)

// Notification is a message about one finished crawl run
type Notification struct {
	Type     NotificationType
	Title    string
	Message  string
	RunID    string
	SeedURL  string
	Pages    int
	Failed   int
	Duration string
}

// DeliveryChannel defines the interface for notification delivery
type DeliveryChannel interface {
	Name() string
	Deliver(ctx context.Context, n *Notification) error
}

// Service turns finished runs into notifications and delivers them
type Service struct {
	channels []DeliveryChannel
}

// NewService creates a notification service
func NewService(channels ...DeliveryChannel) *Service {
	return &Service{channels: channels}
}

// AddChannel adds a delivery channel to the service
func (s *Service) AddChannel(ch DeliveryChannel) {
	s.channels = append(s.channels, ch)
}

// NotifyRunFinished delivers a notification for a finished run to every
// channel. Delivery failures are logged and never returned.
func (s *Service) NotifyRunFinished(ctx context.Context, run runs.Run, _ []crawler.PageResult) {
	if len(s.channels) == 0 {
		return
	}

	n := NewRunNotification(run)
	for _, ch := range s.channels {
		if err := ch.Deliver(ctx, n); err != nil {
			log.Warn().
				Err(err).
				Str("run_id", run.ID).
				Str("channel", ch.Name()).
				Msg("Failed to deliver notification")
			continue
		}
		log.Info().Str("run_id", run.ID).Str("channel", ch.Name()).Msg("Notification delivered")
	}
}

// NewRunNotification builds the notification for a finished run
func NewRunNotification(run runs.Run) *Notification {
	n := &Notification{
		RunID:    run.ID,
		SeedURL:  run.SeedURL,
		Pages:    run.TotalPages,
		Failed:   run.FailedPages,
		Duration: formatDuration(run.Duration()),
	}

	switch run.Status {
	case runs.RunStatusFailed:
		n.Type = NotificationRunFailed
		n.Title = fmt.Sprintf("Crawl failed: %s", run.SeedURL)
		n.Message = run.ErrorMessage
	case runs.RunStatusCancelled:
		n.Type = NotificationRunCancelled
		n.Title = fmt.Sprintf("Crawl cancelled: %s", run.SeedURL)
		n.Message = fmt.Sprintf("%d pages crawled before cancellation", run.TotalPages)
	default:
		n.Type = NotificationRunComplete
		n.Title = fmt.Sprintf("Crawl complete: %s", run.SeedURL)
		n.Message = fmt.Sprintf("%d pages crawled in %s, %d failed", run.TotalPages, n.Duration, run.FailedPages)
	}

	return n
}

func formatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "N/A"
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
}

// SlackChannel delivers notifications to a Slack incoming webhook
type SlackChannel struct {
	webhookURL string
}

// NewSlackChannel creates a Slack delivery channel for an incoming webhook URL
func NewSlackChannel(webhookURL string) (*SlackChannel, error) {
	if webhookURL == "" {
		return nil, fmt.Errorf("slack webhook URL is required")
	}
	return &SlackChannel{webhookURL: webhookURL}, nil
}

// Name returns the channel name
func (c *SlackChannel) Name() string {
	return "slack"
}

// Deliver posts the notification to the webhook
func (c *SlackChannel) Deliver(ctx context.Context, n *Notification) error {
	blocks := c.buildMessageBlocks(n)
	msg := &slack.WebhookMessage{
		Text:   fmt.Sprintf("%s: %s", n.Title, n.Message),
		Blocks: &slack.Blocks{BlockSet: blocks},
	}

	if err := slack.PostWebhookContext(ctx, c.webhookURL, msg); err != nil {
		return fmt.Errorf("failed to post Slack webhook: %w", err)
	}
	return nil
}

func (c *SlackChannel) buildMessageBlocks(n *Notification) []slack.Block {
	var emoji string
	switch n.Type {
	case NotificationRunComplete:
		emoji = ":white_check_mark:"
	case NotificationRunFailed:
		emoji = ":x:"
	default:
		emoji = ":warning:"
	}

	blocks := []slack.Block{
		slack.NewSectionBlock(
			slack.NewTextBlockObject(
				"mrkdwn",
				fmt.Sprintf("%s *%s*", emoji, n.Title),
				false,
				false,
			),
			nil,
			nil,
		),
	}

	if n.Message != "" {
		blocks = append(blocks, slack.NewSectionBlock(
			slack.NewTextBlockObject("mrkdwn", n.Message, false, false),
			nil,
			nil,
		))
	}

	fields := []*slack.TextBlockObject{
		slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("*Pages*\n%d", n.Pages), false, false),
		slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("*Failed*\n%d", n.Failed), false, false),
		slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("*Duration*\n%s", n.Duration), false, false),
		slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("*Run*\n`%s`", n.RunID), false, false),
	}
	blocks = append(blocks, slack.NewSectionBlock(nil, fields, nil))

	return blocks
}
