// Package alert notifies operators when a model breaker opens.
package alert

import (
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/soundprediction/kgroute/pkg/config"
)

// DefaultMinInterval is how long a repeated subject stays muted.
const DefaultMinInterval = 5 * time.Minute

type Alerter interface {
	Alert(subject, message string) error
}

// New returns an EmailAlerter when alerting is enabled and has an SMTP host
// and recipients, otherwise a NoOpAlerter.
func New(cfg config.AlertConfig) Alerter {
	if cfg.Enabled && cfg.SMTPHost != "" && len(cfg.To) > 0 {
		return NewEmailAlerter(cfg)
	}
	return &NoOpAlerter{}
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailAlerter mails alerts over SMTP with PLAIN auth. A subject already sent
// within MinInterval is dropped.
type EmailAlerter struct {
	cfg         config.AlertConfig
	MinInterval time.Duration

	mu     sync.Mutex
	sentAt map[string]time.Time
	send   sendFunc
}

func NewEmailAlerter(cfg config.AlertConfig) *EmailAlerter {
	return &EmailAlerter{
		cfg:         cfg,
		MinInterval: DefaultMinInterval,
		sentAt:      map[string]time.Time{},
		send:        smtp.SendMail,
	}
}

// muted records subject as sent and reports whether it was sent recently.
func (a *EmailAlerter) muted(subject string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if at, ok := a.sentAt[subject]; ok && time.Since(at) < a.MinInterval {
		return true
	}
	a.sentAt[subject] = time.Now()
	return false
}

func (a *EmailAlerter) Alert(subject, message string) error {
	if !a.cfg.Enabled {
		return nil
	}
	if a.muted(subject) {
		slog.Debug("alert suppressed", "subject", subject)
		return nil
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(a.cfg.To, ","))
	fmt.Fprintf(&msg, "Subject: %s\r\n\r\n%s\r\n", subject, message)

	addr := net.JoinHostPort(a.cfg.SMTPHost, strconv.Itoa(a.cfg.SMTPPort))
	auth := smtp.PlainAuth("", a.cfg.Username, a.cfg.Password, a.cfg.SMTPHost)
	if err := a.send(addr, auth, a.cfg.From, a.cfg.To, []byte(msg.String())); err != nil {
		return fmt.Errorf("send alert %q: %w", subject, err)
	}
	return nil
}

// NoOpAlerter drops every alert.
type NoOpAlerter struct{}

func (*NoOpAlerter) Alert(string, string) error { return nil }

// LogAlerter writes alerts to Logger, or slog.Default when nil, at warn level.
type LogAlerter struct {
	Logger *slog.Logger
}

func (l *LogAlerter) Alert(subject, message string) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn(subject, "message", message)
	return nil
}
