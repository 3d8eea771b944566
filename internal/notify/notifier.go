// Package notify sends the account emails (verification codes, reset links,
// change confirmations). Delivery is fire-and-forget: callers hand a Message
// to a Dispatcher and never see the delivery result.
package notify

import (
	"context"

	"blogauth/internal/logging"
)

type Message struct {
	// Kind names the template, e.g. "verification"; carried in kafka events.
	Kind    string `json:"kind"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// LogNotifier only records that a message would have been sent. Used in
// development when no mail transport is configured.
type LogNotifier struct {
	Logger logging.Logger
}

func (n LogNotifier) Send(ctx context.Context, msg Message) error {
	n.Logger.Info(ctx, "notification", "kind", msg.Kind, "to", msg.To, "subject", msg.Subject)
	return nil
}
