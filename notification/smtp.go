package notification

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wneessen/go-mail"
)

type SMTPConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	TLSPolicy string `mapstructure:"tls_policy"` // mandatory, opportunistic, none or ssl
}

// SMTPNotifier sends through an SMTP relay. A connection is opened per message.
type SMTPNotifier struct {
	config  SMTPConfig
	from    string
	timeout time.Duration
}

func NewSMTPNotifier(config SMTPConfig, from string) *SMTPNotifier {
	return &SMTPNotifier{config: config, from: from, timeout: 30 * time.Second}
}

func (n *SMTPNotifier) Send(ctx context.Context, msg Message) error {
	m := mail.NewMsg()
	if err := m.From(n.from); err != nil {
		return fmt.Errorf("smtp: invalid sender address: %w", err)
	}
	if err := m.To(msg.To); err != nil {
		return fmt.Errorf("smtp: invalid recipient address: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextHTML, msg.HTMLBody)

	client, err := mail.NewClient(n.config.Host, n.clientOptions()...)
	if err != nil {
		return fmt.Errorf("smtp: failed to create client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("smtp: failed to send email: %w", err)
	}
	return nil
}

func (n *SMTPNotifier) Backend() string { return "smtp" }

func (n *SMTPNotifier) clientOptions() []mail.Option {
	opts := []mail.Option{mail.WithTimeout(n.timeout)}
	if n.config.Port != 0 {
		opts = append(opts, mail.WithPort(n.config.Port))
	}

	switch strings.ToLower(n.config.TLSPolicy) {
	case "none":
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	case "opportunistic":
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	case "ssl":
		opts = append(opts, mail.WithSSL())
	default:
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	}

	if n.config.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(n.config.Username),
			mail.WithPassword(n.config.Password),
		)
	}
	return opts
}
