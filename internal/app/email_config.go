package app

import (
	"strings"
	"time"

	"github.com/charlesng35/timecapsule/pkg/mail"
)

const (
	defaultMailSender  = "no-reply@timecapsule.local"
	defaultSMTPPort    = 587
	defaultSMTPTimeout = 10 * time.Second
)

// EmailConfig captures outbound email settings. Mail carries password reset links.
type EmailConfig struct {
	SMTP SMTPConfig `mapstructure:"smtp"`
}

// SMTPConfig defines SMTP dialer settings for sending email.
type SMTPConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	From     string        `mapstructure:"from"`
	UseTLS   bool          `mapstructure:"use_tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// MailEnabled reports whether reset emails can be delivered.
func (c EmailConfig) MailEnabled() bool {
	return c.SMTP.Enabled && strings.TrimSpace(c.SMTP.Host) != ""
}

// SMTPSettings converts EmailConfig to the mail package representation,
// falling back to the service sender address when none is configured.
func (c EmailConfig) SMTPSettings() mail.SMTPSettings {
	from := strings.TrimSpace(c.SMTP.From)
	if from == "" {
		from = defaultMailSender
	}
	port := c.SMTP.Port
	if port <= 0 {
		port = defaultSMTPPort
	}
	timeout := c.SMTP.Timeout
	if timeout <= 0 {
		timeout = defaultSMTPTimeout
	}

	return mail.SMTPSettings{
		Enabled:  c.SMTP.Enabled,
		Host:     strings.TrimSpace(c.SMTP.Host),
		Port:     port,
		Username: c.SMTP.Username,
		Password: c.SMTP.Password,
		From:     from,
		UseTLS:   c.SMTP.UseTLS,
		Timeout:  timeout,
	}
}
