package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/bwmarrin/discordgo"
	"github.com/raphaelgruber/minutes-go/internal/jobs"
)

// discordSender abstracts the discordgo.Session method we use, enabling test mocks.
type discordSender interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Discord posts job notifications to a channel over the REST API. No gateway
// connection is opened.
type Discord struct {
	sess      discordSender
	channelID string
	logger    *slog.Logger
}

// Compile-time check that Discord implements jobs.Notifier.
var _ jobs.Notifier = (*Discord)(nil)

// NewDiscord creates a notifier posting with a bot token.
func NewDiscord(token, channelID string, logger *slog.Logger) (*Discord, error) {
	if token == "" {
		return nil, fmt.Errorf("discord: bot token is required")
	}
	if channelID == "" {
		return nil, fmt.Errorf("discord: channel is required")
	}
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}
	return newDiscord(dg, channelID, logger), nil
}

func newDiscord(sess discordSender, channelID string, logger *slog.Logger) *Discord {
	if logger == nil {
		logger = slog.Default()
	}
	return &Discord{sess: sess, channelID: channelID, logger: logger}
}

// Notify posts n. Delivery failures are logged, not returned.
func (d *Discord) Notify(ctx context.Context, n jobs.Notification) {
	if err := d.Send(ctx, n); err != nil {
		d.logger.Warn("discord notification failed", "job_id", n.JobID, "error", err)
	}
}

// Send posts n and reports delivery errors.
func (d *Discord) Send(ctx context.Context, n jobs.Notification) error {
	data := buildDiscordMessage(n)
	err := retryOnRateLimit(ctx, func() error {
		_, err := d.sess.ChannelMessageSendComplex(d.channelID, data, discordgo.WithContext(ctx))
		var restErr *discordgo.RESTError
		if errors.As(err, &restErr) && restErr.Response != nil && restErr.Response.StatusCode == http.StatusTooManyRequests {
			return &errRateLimited{err: err}
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("discord: send message: %w", err)
	}
	return nil
}

// buildDiscordMessage renders n as an embed with a text fallback.
func buildDiscordMessage(n jobs.Notification) *discordgo.MessageSend {
	return &discordgo.MessageSend{
		Content: headline(n),
		Embeds: []*discordgo.MessageEmbed{{
			Title:       n.Message,
			Description: n.Title,
			Color:       parseHexColor(levelColor(n.Level)),
			Fields: []*discordgo.MessageEmbedField{
				{Name: "Kind", Value: string(n.Kind), Inline: true},
				{Name: "Job", Value: n.JobID, Inline: true},
			},
		}},
	}
}

// parseHexColor converts a hex color string (e.g. "#36a64f") to an int.
func parseHexColor(hex string) int {
	if len(hex) > 0 && hex[0] == '#' {
		hex = hex[1:]
	}
	c, err := strconv.ParseInt(hex, 16, 32)
	if err != nil {
		return 0
	}
	return int(c)
}
