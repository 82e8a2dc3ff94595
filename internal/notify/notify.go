// Package notify delivers approval requests to a human reviewer over an
// incoming webhook.
package notify

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/slack-go/slack"
	"go.uber.org/zap"
)

const defaultTimeout = 10 * time.Second

type Result struct {
	Delivered bool
}

// Notifier posts {text, channel} payloads. It never returns errors: a missing
// URL or a failed request yields Delivered=false. Requests are not retried.
type Notifier struct {
	url     string
	channel string
	client  *http.Client
	logger  *zap.Logger
}

func New(url, channel string, timeout time.Duration, logger *zap.Logger) *Notifier {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{
		url:     strings.TrimSpace(url),
		channel: strings.TrimSpace(channel),
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Configured reports whether a webhook URL is set.
func (n *Notifier) Configured() bool {
	return n != nil && n.url != ""
}

// Notify sends summary. An empty channel uses the configured default.
func (n *Notifier) Notify(ctx context.Context, summary, channel string) Result {
	if !n.Configured() {
		n.logger.Info("approval webhook is not configured, skipping notification")
		return Result{}
	}

	summary = strings.TrimSpace(summary)
	if summary == "" {
		n.logger.Warn("refusing to send empty approval summary")
		return Result{}
	}

	if channel = strings.TrimSpace(channel); channel == "" {
		channel = n.channel
	}

	msg := &slack.WebhookMessage{Text: summary, Channel: channel}
	if err := slack.PostWebhookCustomHTTPContext(ctx, n.url, n.client, msg); err != nil {
		n.logger.Warn("approval notification failed", zap.Error(err))
		return Result{}
	}

	n.logger.Info("approval notification delivered", zap.String("channel", channel))
	return Result{Delivered: true}
}
