// Package notify sends user notifications through Resend.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/resend/resend-go/v2"
	"github.com/yuin/goldmark"
	"go.uber.org/zap"

	"github.com/capitalize-ai/persona-chat/pkg/logger"
)

// TestRecipient receives every email when test mode is on.
const TestRecipient = "delivered@resend.dev"

// Config holds Resend settings.
type Config struct {
	APIKey     string
	AudienceID string
	From       string
	// TestMode routes every email to TestRecipient.
	TestMode bool
}

// Resend delivers welcome emails and keeps the audience list.
type Resend struct {
	client *resend.Client
	cfg    Config
	logger *logger.Logger
}

// NewResend creates a notifier for cfg.
func NewResend(cfg Config, log *logger.Logger) *Resend {
	return NewResendWithClient(resend.NewClient(cfg.APIKey), cfg, log)
}

// NewResendWithClient creates a notifier over an existing client.
func NewResendWithClient(client *resend.Client, cfg Config, log *logger.Logger) *Resend {
	return &Resend{client: client, cfg: cfg, logger: log}
}

// AddContact adds email to the audience. It is a no-op without an audience.
func (r *Resend) AddContact(ctx context.Context, email, firstName, lastName string) error {
	if r.cfg.AudienceID == "" {
		return nil
	}
	_, err := r.client.Contacts.CreateWithContext(ctx, &resend.CreateContactRequest{
		Email:      email,
		FirstName:  firstName,
		LastName:   lastName,
		AudienceId: r.cfg.AudienceID,
	})
	if err != nil {
		return fmt.Errorf("failed to create contact: %w", err)
	}
	return nil
}

// SendWelcome sends the welcome email.
func (r *Resend) SendWelcome(ctx context.Context, email, firstName string) error {
	md := WelcomeMarkdown(firstName)
	html, err := markdownToHTML(md)
	if err != nil {
		return fmt.Errorf("failed to render email: %w", err)
	}

	to := email
	if r.cfg.TestMode {
		to = TestRecipient
	}
	sent, err := r.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    r.cfg.From,
		To:      []string{to},
		Subject: "Welcome to Capitalize",
		Html:    html,
		Text:    md,
	})
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	r.logger.Debug("email sent", zap.String("email_id", sent.Id), zap.Bool("test_mode", r.cfg.TestMode))
	return nil
}

// WelcomeMarkdown is the welcome email body.
func WelcomeMarkdown(firstName string) string {
	greeting := "Hi there,"
	if name := strings.TrimSpace(firstName); name != "" {
		greeting = "Hi " + name + ","
	}
	return greeting + `

Thanks for signing up. Any conversations you started before creating an account
have been moved over, so you can pick up right where you left off.

**What you can ask about**

- background and biography
- career, projects and past roles

Just reply in the chat whenever you are ready.
`
}

func markdownToHTML(md string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return "", err
	}
	return fmt.Sprintf(`<!DOCTYPE html>
<html><head><meta charset="utf-8"></head>
<body style="font-family: sans-serif; font-size: 14px; line-height: 1.5;">
%s
</body></html>`, buf.String()), nil
}
