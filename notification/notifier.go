// Package notification delivers verification links to applicants by email.
package notification

import (
	"context"
	"fmt"
	"log/slog"
)

// Message is a rendered email ready to be sent.
type Message struct {
	To       string
	Subject  string
	HTMLBody string
}

// Notifier sends a single message. Implementations must be safe for
// concurrent use; no retries are attempted.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
	// Backend names the delivery mechanism for logs and metrics.
	Backend() string
}

// LogNotifier only logs the recipient and subject. It is meant for local
// development where no mail backend is available.
type LogNotifier struct{}

func (LogNotifier) Send(_ context.Context, msg Message) error {
	if msg.To == "" {
		return fmt.Errorf("message has no recipient")
	}
	slog.Info("email delivery disabled, not sending verification email", "subject", msg.Subject)
	return nil
}

func (LogNotifier) Backend() string { return "log" }
