// Package notify delivers absence notices to guardians from the notification
// outbox. Delivery is best-effort and never affects stored attendance.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrNoRecipient is returned when a message has no recipient.
var ErrNoRecipient = errors.New("no recipient")

// Sender delivers one message to one recipient.
type Sender interface {
	Send(ctx context.Context, recipient, subject, body string) error
	Name() string
}

// NopSender discards every message.
type NopSender struct{}

// Send discards the message.
func (NopSender) Send(ctx context.Context, recipient, subject, body string) error { return nil }

// Name returns the transport name.
func (NopSender) Name() string { return "none" }

// LogSender writes messages to a logger instead of delivering them.
type LogSender struct {
	Logger *slog.Logger
}

// Send logs the message.
func (s LogSender) Send(ctx context.Context, recipient, subject, body string) error {
	if recipient == "" {
		return ErrNoRecipient
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "notification",
		"module", "notify",
		"recipient", recipient,
		"subject", subject,
		"body", body)
	return nil
}

// Name returns the transport name.
func (LogSender) Name() string { return "log" }

// Config selects and configures a transport.
type Config struct {
	Transport      string // log, shoutrrr, sendgrid or none
	URL            string // shoutrrr URL template
	SendGridAPIKey string
	SendGridHost   string
	From           string
	FromName       string
}

// NewSender builds the sender for cfg.
func NewSender(cfg Config, logger *slog.Logger) (Sender, error) {
	switch strings.ToLower(cfg.Transport) {
	case "", "log":
		return LogSender{Logger: logger}, nil
	case "none", "nop":
		return NopSender{}, nil
	case "shoutrrr":
		return NewShoutrrrSender(cfg.URL, 0)
	case "sendgrid":
		return NewSendGridSender(cfg.SendGridAPIKey, cfg.FromName, cfg.From, cfg.SendGridHost)
	default:
		return nil, fmt.Errorf("unknown notification transport %q", cfg.Transport)
	}
}
