package mail

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrSMTPDisabled signals that SMTP delivery is disabled via configuration.
var ErrSMTPDisabled = errors.New("smtp: delivery disabled")

// Message represents an outbound email. HTML takes precedence over Text when both are set.
type Message struct {
	From    string
	To      []string
	Subject string
	HTML    string
	Text    string
}

// Mailer defines behaviour for sending email messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPSettings capture the runtime configuration required by the SMTP mailer.
type SMTPSettings struct {
	Enabled  bool
	Host     string
	Port     int
	Username string
	Password string
	From     string
	UseTLS   bool
	Timeout  time.Duration
}

// SendHTML delivers a single HTML message to one recipient.
func SendHTML(ctx context.Context, mailer Mailer, to, subject, html string) error {
	if mailer == nil {
		return ErrSMTPDisabled
	}
	return mailer.Send(ctx, Message{
		To:      []string{to},
		Subject: subject,
		HTML:    html,
	})
}

// RecordingMailer keeps every message in memory. It backs tests and local development.
type RecordingMailer struct {
	Messages []Message
	Err      error
}

// Send records the message or returns the configured error.
func (r *RecordingMailer) Send(_ context.Context, msg Message) error {
	if r.Err != nil {
		return r.Err
	}
	r.Messages = append(r.Messages, msg)
	return nil
}

// Last returns the most recently recorded message.
func (r *RecordingMailer) Last() (Message, bool) {
	if len(r.Messages) == 0 {
		return Message{}, false
	}
	return r.Messages[len(r.Messages)-1], true
}

func uniqueAddresses(addresses []string) []string {
	seen := make(map[string]struct{}, len(addresses))
	var result []string
	for _, addr := range addresses {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		if _, exists := seen[addr]; exists {
			continue
		}
		seen[addr] = struct{}{}
		result = append(result, addr)
	}
	return result
}
