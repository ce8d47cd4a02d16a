// Package mail sends notification emails.
package mail

import (
	"context"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config holds SMTP connection settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPSender delivers plain text emails through an SMTP relay.
type SMTPSender struct {
	cfg  Config
	auth smtp.Auth
	send sendFunc
	now  func() time.Time
	log  zerolog.Logger
}

func NewSMTPSender(cfg Config, log zerolog.Logger) *SMTPSender {
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return &SMTPSender{
		cfg:  cfg,
		auth: auth,
		send: smtp.SendMail,
		now:  time.Now,
		log:  log.With().Str("component", "smtp").Logger(),
	}
}

// SendEmail sends one message. smtp.SendMail has no context support, so the
// context is only checked before dialing.
func (s *SMTPSender) SendEmail(ctx context.Context, address, title, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if address == "" {
		return fmt.Errorf("send email: empty recipient address")
	}
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	msg := buildMessage(s.cfg.From, address, title, content, s.now())
	if err := s.send(addr, s.auth, s.cfg.From, []string{address}, msg); err != nil {
		return fmt.Errorf("send email to %s: %w", address, err)
	}
	s.log.Debug().Str("to", address).Msg("email sent")
	return nil
}

// LogSender only logs messages. It is used when no SMTP host is configured.
type LogSender struct {
	log zerolog.Logger
}

func NewLogSender(log zerolog.Logger) *LogSender {
	return &LogSender{log: log.With().Str("component", "mail").Logger()}
}

func (s *LogSender) SendEmail(_ context.Context, address, title, content string) error {
	s.log.Info().Str("to", address).Str("title", title).Int("length", len(content)).Msg("email not sent, smtp disabled")
	return nil
}

func buildMessage(from, to, subject, body string, date time.Time) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", subject) + "\r\n")
	b.WriteString("Date: " + date.Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(b.String())
}
