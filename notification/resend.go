package notification

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/resend/resend-go/v2"
)

// ResendNotifier sends through the Resend transactional email API.
type ResendNotifier struct {
	client *resend.Client
	from   string
}

func NewResendNotifier(apiKey, from string) *ResendNotifier {
	return NewResendNotifierWithClient(resend.NewClient(apiKey), from)
}

func NewResendNotifierWithClient(client *resend.Client, from string) *ResendNotifier {
	return &ResendNotifier{client: client, from: from}
}

func (n *ResendNotifier) Send(ctx context.Context, msg Message) error {
	params := &resend.SendEmailRequest{
		From:    n.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    msg.HTMLBody,
	}

	sent, err := n.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return fmt.Errorf("resend: failed to send email: %w", err)
	}

	slog.Debug("email accepted by resend", "email_id", sent.Id)
	return nil
}

func (n *ResendNotifier) Backend() string { return "resend" }
