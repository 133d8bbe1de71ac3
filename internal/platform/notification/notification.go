// Package notification sends the transactional emails of the EHR: password
// reset links and password change confirmations.
package notification

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EmailSender delivers a plain text email.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

const (
	TemplatePasswordReset   = "password-reset"
	TemplatePasswordChanged = "password-changed"
)

type Template struct {
	ID      string
	Subject string
	Body    string
}

// TemplateEngine renders {{key}} placeholders. The template set is fixed at
// construction.
type TemplateEngine struct {
	templates map[string]Template
}

func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]Template)}
	for _, t := range []Template{
		{
			ID:      TemplatePasswordReset,
			Subject: "Password Reset Request",
			Body: "Dear {{name}},\n\nTo reset your password, visit the following link:\n{{reset_link}}\n\n" +
				"The link expires in {{expires_in}}. If you did not make this request, ignore this email and no changes will be made.\n",
		},
		{
			ID:      TemplatePasswordChanged,
			Subject: "Your password was changed",
			Body:    "Dear {{name}},\n\nThe password of your account {{username}} was changed on {{changed_at}}.\n",
		},
	} {
		e.templates[t.ID] = t
	}
	return e
}

// Render substitutes data into the template. Unknown placeholders stay as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	t, ok := e.templates[templateID]
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	pairs := make([]string, 0, len(data)*2)
	for k, v := range data {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	r := strings.NewReplacer(pairs...)
	return r.Replace(t.Subject), r.Replace(t.Body), nil
}

// Mailer renders a template and hands it to an EmailSender.
type Mailer struct {
	sender    EmailSender
	templates *TemplateEngine
}

func NewMailer(sender EmailSender, templates *TemplateEngine) *Mailer {
	return &Mailer{sender: sender, templates: templates}
}

func (m *Mailer) Send(ctx context.Context, to, templateID string, data map[string]string) error {
	subject, body, err := m.templates.Render(templateID, data)
	if err != nil {
		return err
	}
	if err := m.sender.SendEmail(ctx, to, subject, body); err != nil {
		return fmt.Errorf("send %s email: %w", templateID, err)
	}
	return nil
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPSender delivers mail through an SMTP relay with optional PLAIN auth.
type SMTPSender struct {
	cfg  SMTPConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
	now  func() time.Time
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg, send: smtp.SendMail, now: time.Now}
}

func (s *SMTPSender) SendEmail(ctx context.Context, to, subject, body string) error {
	if strings.ContainsAny(to, "\r\n") || strings.ContainsAny(subject, "\r\n") {
		return errors.New("invalid header value")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	msg := strings.Join([]string{
		"From: " + s.cfg.From,
		"To: " + to,
		"Subject: " + subject,
		"Date: " + s.now().Format(time.RFC1123Z),
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=UTF-8",
		"",
		body,
	}, "\r\n")

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	if err := s.send(addr, auth, s.cfg.From, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// LogSender writes emails to the log instead of sending them. Used in
// development when no SMTP host is configured.
type LogSender struct {
	logger zerolog.Logger
}

func NewLogSender(logger zerolog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) SendEmail(_ context.Context, to, subject, body string) error {
	s.logger.Info().Str("to", to).Str("subject", subject).Str("body", body).Msg("email not sent (log sender)")
	return nil
}

// EmailCall records a single call to SendEmail.
type EmailCall struct {
	To      string
	Subject string
	Body    string
}

// MockEmailSender is a test double for EmailSender.
type MockEmailSender struct {
	mu    sync.Mutex
	calls []EmailCall
	Err   error
}

func (m *MockEmailSender) SendEmail(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, EmailCall{To: to, Subject: subject, Body: body})
	return m.Err
}

func (m *MockEmailSender) Calls() []EmailCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EmailCall, len(m.calls))
	copy(out, m.calls)
	return out
}
