package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/raphaelgruber/minutes-go/internal/jobs"
	slackapi "github.com/slack-go/slack"
)

// slackPoster abstracts the Slack API method we use, enabling test mocks.
type slackPoster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error)
}

// Slack posts job notifications to a channel.
type Slack struct {
	client    slackPoster
	channelID string
	logger    *slog.Logger
}

// Compile-time check that Slack implements jobs.Notifier.
var _ jobs.Notifier = (*Slack)(nil)

// NewSlack creates a notifier posting with a bot token.
func NewSlack(token, channelID string, logger *slog.Logger) (*Slack, error) {
	if token == "" {
		return nil, fmt.Errorf("slack: bot token is required")
	}
	if channelID == "" {
		return nil, fmt.Errorf("slack: channel is required")
	}
	return newSlack(slackapi.New(token), channelID, logger), nil
}

func newSlack(client slackPoster, channelID string, logger *slog.Logger) *Slack {
	if logger == nil {
		logger = slog.Default()
	}
	return &Slack{client: client, channelID: channelID, logger: logger}
}

// Notify posts n. Delivery failures are logged, not returned.
func (s *Slack) Notify(ctx context.Context, n jobs.Notification) {
	if err := s.Send(ctx, n); err != nil {
		s.logger.Warn("slack notification failed", "job_id", n.JobID, "error", err)
	}
}

// Send posts n and reports delivery errors.
func (s *Slack) Send(ctx context.Context, n jobs.Notification) error {
	options := buildSlackOptions(n)
	err := retryOnRateLimit(ctx, func() error {
		_, _, err := s.client.PostMessageContext(ctx, s.channelID, options...)
		var rle *slackapi.RateLimitedError
		if errors.As(err, &rle) {
			return &errRateLimited{retryAfter: rle.RetryAfter, err: err}
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("slack: post message: %w", err)
	}
	return nil
}

// buildSlackOptions renders n as an attachment with a text fallback.
func buildSlackOptions(n jobs.Notification) []slackapi.MsgOption {
	att := slackapi.Attachment{
		Title:    n.Message,
		Text:     n.Title,
		Color:    levelColor(n.Level),
		Fallback: headline(n),
		Fields: []slackapi.AttachmentField{
			{Title: "Kind", Value: string(n.Kind), Short: true},
			{Title: "Job", Value: n.JobID, Short: true},
		},
	}
	return []slackapi.MsgOption{
		slackapi.MsgOptionText(headline(n), false),
		slackapi.MsgOptionAttachments(att),
	}
}
