// ABOUTME: SMTP email delivery using go-mail. Dial-per-send for sporadic transactional traffic.
// ABOUTME: Mailer renders the invitation and reminder templates and sends one message per recipient.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wneessen/go-mail"
)

// SmtpConfig holds SMTP connection parameters sourced from global env vars.
type SmtpConfig struct {
	Host     string
	Port     int
	From     string
	FromName string
	Username string
	Password string
	TLS      bool
}

// Enabled reports whether an SMTP host is configured.
func (c SmtpConfig) Enabled() bool { return c.Host != "" }

// EmailSend sends an HTML+plaintext multipart email to one recipient.
// Uses DialAndSend (dial-per-send); no persistent SMTP connection.
func EmailSend(ctx context.Context, cfg SmtpConfig, to, subject, htmlBody, textBody string) error {
	if strings.TrimSpace(to) == "" {
		return errors.New("email send: no recipient")
	}

	// Strip CR/LF from subject to prevent header injection.
	subject = sanitizeSubject(subject)

	fromName := cfg.FromName
	if fromName == "" {
		fromName = "Patron"
	}
	m := mail.NewMsg()
	if err := m.FromFormat(fromName, cfg.From); err != nil {
		return fmt.Errorf("email send: set from: %w", err)
	}
	if err := m.To(to); err != nil {
		return fmt.Errorf("email send: set to: %w", err)
	}
	m.Subject(subject)
	m.SetBodyString(mail.TypeTextPlain, textBody)
	m.AddAlternativeString(mail.TypeTextHTML, htmlBody)

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
	}
	if cfg.Username != "" {
		opts = append(opts, mail.WithSMTPAuth(mail.SMTPAuthPlain))
		opts = append(opts, mail.WithUsername(cfg.Username))
		opts = append(opts, mail.WithPassword(cfg.Password))
	}
	if cfg.TLS {
		opts = append(opts, mail.WithTLSPortPolicy(mail.TLSMandatory))
	} else {
		opts = append(opts, mail.WithTLSPortPolicy(mail.TLSOpportunistic))
	}

	c, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("email send: create client: %w", err)
	}
	if err := c.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("email send: %w", err)
	}
	return nil
}

// Mailer sends Patron's transactional emails over SMTP.
type Mailer struct {
	cfg SmtpConfig
}

// NewMailer creates a Mailer. The caller checks cfg.Enabled first.
func NewMailer(cfg SmtpConfig) *Mailer {
	return &Mailer{cfg: cfg}
}

// SendInvitation renders and sends an invitation email.
func (m *Mailer) SendInvitation(ctx context.Context, inv Invitation) error {
	subject, html, text, err := RenderInvitation(inv)
	if err != nil {
		return err
	}
	return EmailSend(ctx, m.cfg, inv.To, subject, html, text)
}

// SendReminder renders and sends a follow-up digest.
func (m *Mailer) SendReminder(ctx context.Context, r Reminder) error {
	if len(r.Items) == 0 {
		return errors.New("send reminder: no follow-ups")
	}
	subject, html, text, err := RenderReminder(r)
	if err != nil {
		return err
	}
	return EmailSend(ctx, m.cfg, r.To, subject, html, text)
}
