package mail

import (
	"context"
	"fmt"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/getactive/apiserver/config"
	"github.com/sirupsen/logrus"
)

// Email is a rendered plain text message.
type Email struct {
	From    string
	To      string
	Subject string
	Body    string
}

// Mailer delivers rendered emails.
type Mailer interface {
	Send(ctx context.Context, email Email) error
}

// NewMailer returns an SMTP mailer when a host is configured and a logging
// mailer otherwise.
func NewMailer(cfg config.SMTPConfig, logger logrus.FieldLogger) Mailer {
	if strings.TrimSpace(cfg.Host) == "" {
		return &LogMailer{logger: logger}
	}
	return &SMTPMailer{cfg: cfg, send: smtp.SendMail}
}

// LogMailer writes emails to the log instead of sending them.
type LogMailer struct {
	logger logrus.FieldLogger
}

func (m *LogMailer) Send(_ context.Context, email Email) error {
	m.logger.WithFields(logrus.Fields{
		"to":      email.To,
		"subject": email.Subject,
	}).Info(email.Body)
	return nil
}

// SMTPMailer sends emails through a plain SMTP relay.
type SMTPMailer struct {
	cfg  config.SMTPConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func (m *SMTPMailer) Send(ctx context.Context, email Email) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	addr := m.cfg.Host + ":" + strconv.Itoa(m.cfg.Port)
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	if err := m.send(addr, auth, email.From, []string{email.To}, email.bytes()); err != nil {
		return fmt.Errorf("failed to send mail to %s: %w", email.To, err)
	}
	return nil
}

func (e Email) bytes() []byte {
	var b strings.Builder
	b.WriteString("From: " + e.From + "\r\n")
	b.WriteString("To: " + e.To + "\r\n")
	b.WriteString("Subject: " + e.Subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(e.Body)
	return []byte(b.String())
}
