package notify

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// Mailer delivers account notifications
type Mailer interface {
	SendPasswordReset(ctx context.Context, msg PasswordResetMessage) error
}

// PasswordResetMessage is the content of a reset email
type PasswordResetMessage struct {
	To        string
	Name      string
	ResetLink string
}

// Subject is the email subject line
func (m PasswordResetMessage) Subject() string {
	return "Password Reset Request - HR Succession Planning System"
}

// Body renders the plain-text email body
func (m PasswordResetMessage) Body() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\n", m.Name)
	b.WriteString("You have requested a password reset for your HR Succession Planning System account.\n\n")
	b.WriteString("To reset your password, please click on the following link:\n")
	b.WriteString(m.ResetLink + "\n\n")
	b.WriteString("This link will expire in 1 hour.\n\n")
	b.WriteString("If you did not request this password reset, please ignore this email.\n")
	return b.String()
}

// ResetLink builds the frontend link carrying token
func ResetLink(frontendURL, token string) string {
	return strings.TrimRight(frontendURL, "/") + "/reset-password?token=" + url.QueryEscape(token)
}

// LogMailer writes messages to the log instead of sending them. It is the
// delivery used when no mail transport is configured.
type LogMailer struct {
	log *zap.Logger
}

// NewLogMailer creates a log-only mailer
func NewLogMailer(log *zap.Logger) *LogMailer {
	return &LogMailer{log: log}
}

// SendPasswordReset logs the reset message
func (m *LogMailer) SendPasswordReset(ctx context.Context, msg PasswordResetMessage) error {
	m.log.Info("password reset email",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject()),
		zap.String("reset_link", msg.ResetLink),
	)
	return nil
}
