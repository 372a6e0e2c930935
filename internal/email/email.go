// Package email delivers sign-in links.
package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/resend/resend-go/v2"
)

type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// LogSender writes messages to the log instead of delivering them. In
// ENV=local the sign-in link is copied from there.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger.With("component", "email")}
}

func (s *LogSender) Send(ctx context.Context, to, subject, body string) error {
	s.logger.InfoContext(ctx, "login email (local dev)", "to", to, "subject", subject, "body", body)
	return nil
}

// ResendSender returns once Resend has accepted the message. Delivery itself
// is not awaited.
type ResendSender struct {
	client *resend.Client
	from   string
}

func NewResendSender(apiKey, from string) *ResendSender {
	return &ResendSender{client: resend.NewClient(apiKey), from: from}
}

func (s *ResendSender) Send(ctx context.Context, to, subject, body string) error {
	sent, err := s.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{to},
		Subject: subject,
		Html:    body,
		Tags:    []resend.Tag{{Name: "category", Value: "login"}},
	})
	if err != nil {
		return fmt.Errorf("resend: %w", err)
	}
	if sent.Id == "" {
		return errors.New("resend: empty message id")
	}
	return nil
}

// NewSender picks the log sender for ENV=local and Resend everywhere else.
func NewSender(env, apiKey, from string, logger *slog.Logger) Sender {
	if env == "local" {
		return NewLogSender(logger)
	}
	return NewResendSender(apiKey, from)
}
