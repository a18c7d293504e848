// Package mailqueue delivers outgoing mail, either inline over SMTP or
// through a RabbitMQ queue drained by a worker process.
package mailqueue

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/cppla/gqlbbs/config"
	"github.com/cppla/gqlbbs/metrics"
	"github.com/cppla/gqlbbs/services"
	"github.com/cppla/gqlbbs/utils"
)

// ErrSMTPNotConfigured is returned when no SMTP host or sender is set.
var ErrSMTPNotConfigured = errors.New("smtp not configured")

// SMTPSender sends HTML mail through an SMTP relay.
type SMTPSender struct {
	host     string
	port     int
	username string
	password string
	from     string
	fromName string
	startTLS bool
}

func NewSMTPSender(cfg config.AppConfig) *SMTPSender {
	fromName := cfg.SMTPFromName
	if fromName == "" {
		fromName = "gqlbbs"
	}
	return &SMTPSender{
		host:     cfg.SMTPHost,
		port:     cfg.SMTPPort,
		username: cfg.SMTPUsername,
		password: cfg.SMTPPassword,
		from:     cfg.SMTPFrom,
		fromName: fromName,
		startTLS: cfg.SMTPTLS,
	}
}

// Configured reports whether a relay is set up.
func (s *SMTPSender) Configured() bool {
	return s.host != "" && s.from != ""
}

// Send implements services.Mailer.
func (s *SMTPSender) Send(ctx context.Context, m services.Mail) error {
	err := s.send(ctx, m)
	if err != nil {
		metrics.RecordMail("smtp", metrics.OutcomeError)
		return err
	}
	metrics.RecordMail("smtp", metrics.OutcomeSuccess)
	return nil
}

func (s *SMTPSender) send(ctx context.Context, m services.Mail) error {
	if !s.Configured() {
		return ErrSMTPNotConfigured
	}
	addr := net.JoinHostPort(s.host, strconv.Itoa(s.port))
	msg := buildMessage(s.fromName, s.from, m)

	d := net.Dialer{Timeout: 5 * time.Second}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	deadline := time.Now().Add(15 * time.Second)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	_ = conn.SetDeadline(deadline)

	c, err := smtp.NewClient(conn, s.host)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer c.Close()

	if s.startTLS {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(&tls.Config{ServerName: s.host}); err != nil {
				return err
			}
		}
	}
	if s.username != "" {
		if err := c.Auth(smtp.PlainAuth("", s.username, s.password, s.host)); err != nil {
			return err
		}
	}
	if err := c.Mail(s.from); err != nil {
		return err
	}
	if err := c.Rcpt(m.To); err != nil {
		return err
	}
	wc, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := wc.Write(msg); err != nil {
		_ = wc.Close()
		return err
	}
	if err := wc.Close(); err != nil {
		return err
	}
	return c.Quit()
}

// buildMessage renders headers and body. Non-ASCII header values are B-encoded.
func buildMessage(fromName, from string, m services.Mail) []byte {
	headers := [][2]string{
		{"From", fmt.Sprintf("%s <%s>", mime.BEncoding.Encode("UTF-8", fromName), from)},
		{"To", m.To},
		{"Subject", mime.BEncoding.Encode("UTF-8", m.Subject)},
		{"MIME-Version", "1.0"},
		{"Content-Type", "text/html; charset=UTF-8"},
	}
	var msg strings.Builder
	for _, h := range headers {
		msg.WriteString(h[0] + ": " + h[1] + "\r\n")
	}
	msg.WriteString("\r\n")
	msg.WriteString(m.HTML)
	return []byte(msg.String())
}

// LogSender writes mail to the application log instead of delivering it.
// It stands in for SMTP during local development.
type LogSender struct{}

func (LogSender) Send(_ context.Context, m services.Mail) error {
	utils.Sugar.Infow("mail not delivered, smtp not configured", "to", m.To, "subject", m.Subject, "html", m.HTML)
	metrics.RecordMail("log", metrics.OutcomeSuccess)
	return nil
}
