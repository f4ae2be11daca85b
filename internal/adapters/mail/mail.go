// Package mail delivers escalation notifications over SMTP.
package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/example/warden/internal/config"
	"github.com/example/warden/internal/metrics"
	"github.com/example/warden/internal/ports/secondary"
)

// Sender sends one message to a set of receivers.
type Sender interface {
	Send(ctx context.Context, receivers []string, subject, body string) error
	GetHost() string
}

type sender struct {
	dialer         *gomail.Dialer
	senderAddress  string
	senderName     string
	retryCount     int
	retryBackoffMs int
	log            *zap.SugaredLogger
	sleep          func(context.Context, time.Duration) error
}

// NewSender creates an SMTP sender with retry and exponential backoff.
func NewSender(cfg config.MailConfig, log *zap.SugaredLogger) Sender {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password)
	if cfg.InsecureSkipVerify {
		log.Warnw("mail TLS verification disabled", "host", cfg.Host)
		d.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	}

	senderAddr := cfg.SenderAddress
	if senderAddr == "" {
		senderAddr = "noreply@warden.local"
	}
	senderName := cfg.SenderName
	if senderName == "" {
		senderName = "Warden"
	}
	retryCount := cfg.RetryCount
	if retryCount <= 0 {
		retryCount = 3
	}
	retryBackoffMs := cfg.RetryBackoffMs
	if retryBackoffMs <= 0 {
		retryBackoffMs = 100
	}

	return &sender{
		dialer:         d,
		senderAddress:  senderAddr,
		senderName:     senderName,
		retryCount:     retryCount,
		retryBackoffMs: retryBackoffMs,
		log:            log,
		sleep:          sleepContext,
	}
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Send gives up between attempts once ctx is done.
func (s *sender) Send(ctx context.Context, receivers []string, subject, body string) error {
	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", s.senderAddress, s.senderName)
	msg.SetHeader("Bcc", receivers...)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	var lastErr error
	backoffMs := s.retryBackoffMs
	for attempt := 0; attempt <= s.retryCount; attempt++ {
		if err := ctx.Err(); err != nil {
			metrics.MailSendFailure.WithLabelValues(s.GetHost()).Inc()
			return fmt.Errorf("mail send cancelled after %d attempts: %w", attempt, err)
		}
		err := s.dialer.DialAndSend(msg)
		if err == nil {
			metrics.MailSendSuccess.WithLabelValues(s.GetHost()).Inc()
			return nil
		}
		lastErr = err
		if attempt < s.retryCount {
			s.log.Warnw("mail send failed; retrying", "attempt", attempt+1, "backoffMs", backoffMs, "error", err)
			if err := s.sleep(ctx, time.Duration(backoffMs)*time.Millisecond); err != nil {
				metrics.MailSendFailure.WithLabelValues(s.GetHost()).Inc()
				return fmt.Errorf("mail send cancelled after %d attempts: %w", attempt+1, errors.Join(err, lastErr))
			}
			backoffMs = int(math.Min(float64(backoffMs)*2, 32000))
		}
	}

	metrics.MailSendFailure.WithLabelValues(s.GetHost()).Inc()
	return fmt.Errorf("failed to send mail after %d attempts: %w", s.retryCount+1, lastErr)
}

func (s *sender) GetHost() string {
	return s.dialer.Host
}

// Sink routes notifications to the addresses configured for the recipient
// role. A recipient user that looks like an address is added as well.
type Sink struct {
	sender     Sender
	recipients map[string][]string
}

// NewSink creates a mail sink. Role names are matched case-insensitively.
func NewSink(sender Sender, recipients map[string][]string) *Sink {
	normalized := make(map[string][]string, len(recipients))
	for role, addrs := range recipients {
		key := normalizeRole(role)
		normalized[key] = append(normalized[key], addrs...)
	}
	return &Sink{sender: sender, recipients: normalized}
}

func (s *Sink) Name() string { return "mail" }

// Deliver sends the notification. A notification with no resolvable address is rejected.
func (s *Sink) Deliver(ctx context.Context, n *secondary.NotificationRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	receivers := s.Receivers(n)
	if len(receivers) == 0 {
		return fmt.Errorf("no mail recipients configured for role %q", n.RecipientRole)
	}
	return s.sender.Send(ctx, receivers, n.Subject, n.Message)
}

// Receivers returns the deduplicated addresses for a notification.
func (s *Sink) Receivers(n *secondary.NotificationRecord) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(addr string) {
		addr = strings.TrimSpace(addr)
		if addr == "" || seen[strings.ToLower(addr)] {
			return
		}
		seen[strings.ToLower(addr)] = true
		out = append(out, addr)
	}

	for _, addr := range s.recipients[normalizeRole(n.RecipientRole)] {
		add(addr)
	}
	if strings.Contains(n.RecipientUser, "@") {
		add(n.RecipientUser)
	}
	return out
}

// viper lower-cases map keys, so "Security Officer" is configured as "security officer"
// or "security_officer".
func normalizeRole(role string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(role)), "_", " ")
}

var _ secondary.NotificationSink = (*Sink)(nil)
