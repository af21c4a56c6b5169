package services

import (
	"context"
	"log/slog"
)

// Mailer delivers one-time passcodes.
type Mailer interface {
	SendOTP(ctx context.Context, email, code string) error
}

// LogMailer writes passcodes to the log instead of sending mail. It is
// used for local development and until a mail provider is configured.
type LogMailer struct {
	logger *slog.Logger
}

func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) SendOTP(ctx context.Context, email, code string) error {
	m.logger.InfoContext(ctx, "one-time passcode issued", "component", "mailer", "email", email, "otp", code)
	return nil
}
