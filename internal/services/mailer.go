package services

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"

	"github.com/deedox/platform/internal/config"
	"github.com/deedox/platform/internal/metrics"
	"github.com/deedox/platform/pkg/logger"
	"gopkg.in/gomail.v2"
)

// Mail is one outgoing message. It is also the async queue payload.
type Mail struct {
	To       string `json:"to"`
	Subject  string `json:"subject"`
	TextBody string `json:"text_body"`
	HTMLBody string `json:"html_body,omitempty"`
}

type Mailer interface {
	Send(ctx context.Context, m *Mail) error
}

// NewMailer returns an SMTP mailer, or a log-only mailer when mail is disabled.
func NewMailer(cfg *config.MailConfig) Mailer {
	if !cfg.Enabled || cfg.Host == "" {
		return LogMailer{}
	}
	return NewSMTPMailer(cfg)
}

type SMTPMailer struct {
	from   string
	dialer *gomail.Dialer
}

func NewSMTPMailer(cfg *config.MailConfig) *SMTPMailer {
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	if cfg.UseTLS {
		dialer.TLSConfig = &tls.Config{ServerName: cfg.Host}
	}
	return &SMTPMailer{from: cfg.From, dialer: dialer}
}

func (m *SMTPMailer) Send(ctx context.Context, mail *Mail) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := buildMessage(m.from, mail)
	if err != nil {
		return err
	}
	if err := m.dialer.DialAndSend(msg); err != nil {
		metrics.MailSent.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to send email: %w", err)
	}
	metrics.MailSent.WithLabelValues("sent").Inc()
	return nil
}

func buildMessage(from string, mail *Mail) (*gomail.Message, error) {
	if mail.To == "" {
		return nil, errors.New("email recipient is empty")
	}
	msg := gomail.NewMessage()
	msg.SetHeader("From", from)
	msg.SetHeader("To", mail.To)
	msg.SetHeader("Subject", mail.Subject)
	msg.SetHeader("X-Mailer", "Deedox")

	switch {
	case mail.HTMLBody != "":
		msg.SetBody("text/html", mail.HTMLBody)
		if mail.TextBody != "" {
			msg.AddAlternative("text/plain", mail.TextBody)
		}
	case mail.TextBody != "":
		msg.SetBody("text/plain", mail.TextBody)
	default:
		return nil, errors.New("email body is empty")
	}
	return msg, nil
}

// LogMailer writes mail to the log instead of sending it. Used when SMTP is
// not configured, so one-time codes remain visible in development.
type LogMailer struct{}

func (LogMailer) Send(_ context.Context, mail *Mail) error {
	logger.Warn().Str("to", mail.To).Str("subject", mail.Subject).Str("body", mail.TextBody).Msg("mail disabled, message logged instead of sent")
	metrics.MailSent.WithLabelValues("logged").Inc()
	return nil
}
