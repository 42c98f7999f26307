// Package notify delivers OTP codes and verification links by email.
package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/infolock/server/internal/logging"
	"go.uber.org/zap"
)

// Message is a single outbound email
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Mailer sends messages. Implementations must respect ctx deadlines.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPMailer sends over implicit TLS (port 465) with PLAIN auth
type SMTPMailer struct {
	host     string
	port     string
	username string
	password string
	from     string
}

// NewSMTPMailer creates a mailer for the given server and credentials
func NewSMTPMailer(host, port, user, pass, from string) *SMTPMailer {
	if from == "" {
		from = user
	}
	return &SMTPMailer{
		host:     host,
		port:     port,
		username: user,
		password: pass,
		from:     from,
	}
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	body := []byte(
		fmt.Sprintf("From: %s\r\n", m.from) +
			fmt.Sprintf("To: %s\r\n", msg.To) +
			fmt.Sprintf("Subject: %s\r\n", msg.Subject) +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/html; charset=\"utf-8\"\r\n" +
			"\r\n" +
			msg.HTML,
	)

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{},
		Config:    &tls.Config{ServerName: m.host},
	}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(m.host, m.port))
	if err != nil {
		return fmt.Errorf("dial smtp: %w", err)
	}
	defer conn.Close()

	// net/smtp has no context support; bound the whole exchange by the deadline
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, m.host)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	defer client.Quit()

	if m.username != "" {
		auth := smtp.PlainAuth("", m.username, m.password, m.host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := client.Mail(m.from); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := client.Rcpt(msg.To); err != nil {
		return fmt.Errorf("smtp rcpt: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close data: %w", err)
	}
	return nil
}

// DropMailer writes each message to an HTML file under dir instead of sending it.
// Dev mode only: the files hold OTP codes and verification links, the log does not.
type DropMailer struct {
	dir string
	log *zap.Logger

	mu  sync.Mutex
	seq int
}

func NewDropMailer(dir string, log *zap.Logger) (*DropMailer, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create mail drop dir: %w", err)
	}
	return &DropMailer{dir: dir, log: log}, nil
}

func (m *DropMailer) Send(ctx context.Context, msg Message) error {
	m.mu.Lock()
	m.seq++
	name := fmt.Sprintf("%s-%03d.html", time.Now().UTC().Format("20060102T150405"), m.seq)
	m.mu.Unlock()

	path := filepath.Join(m.dir, name)
	body := fmt.Sprintf("<!-- To: %s -->\n<!-- Subject: %s -->\n%s", msg.To, msg.Subject, msg.HTML)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		return fmt.Errorf("write mail drop: %w", err)
	}

	m.log.Info("email written to mail drop",
		zap.String("to", logging.MaskEmail(msg.To)),
		zap.String("subject", msg.Subject),
		zap.String("file", path),
	)
	return nil
}

// SendWithTimeout bounds a single Send by timeout
func SendWithTimeout(ctx context.Context, m Mailer, msg Message, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return m.Send(ctx, msg)
}
