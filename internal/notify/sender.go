// Package notify delivers email notices to students and staff.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/resend/resend-go/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-intake/internal/config"
)

// Message is one outbound email.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Sender delivers a message. Delivery is best effort; callers log the error and move on.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// ResendSender delivers through the Resend API.
type ResendSender struct {
	client *resend.Client
	from   string
	logger *zap.Logger
}

// NewSender picks the Resend sender, or a log-only sender in test mode or when no key is set.
func NewSender(cfg config.NotificationConfig, logger *zap.Logger) Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TestMode || strings.TrimSpace(cfg.ResendAPIKey) == "" {
		return &LogSender{logger: logger}
	}
	from := cfg.EmailFrom
	if cfg.EmailFromName != "" {
		from = fmt.Sprintf("%s <%s>", cfg.EmailFromName, cfg.EmailFrom)
	}
	return &ResendSender{client: resend.NewClient(cfg.ResendAPIKey), from: from, logger: logger}
}

// Send implements Sender.
func (s *ResendSender) Send(ctx context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    msg.HTML,
		Text:    msg.Text,
	}
	sent, err := s.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return fmt.Errorf("send email via resend: %w", err)
	}
	s.logger.Debug("email sent", zap.String("id", sent.Id), zap.String("to", msg.To))
	return nil
}

// LogSender only logs messages.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender returns a sender that never leaves the process.
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

// Send implements Sender.
func (s *LogSender) Send(_ context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	s.logger.Info("email (test mode)",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("text", msg.Text))
	return nil
}

func (m Message) validate() error {
	if strings.TrimSpace(m.To) == "" {
		return errors.New("notify: recipient is empty")
	}
	if m.HTML == "" && m.Text == "" {
		return errors.New("notify: message has no body")
	}
	return nil
}
