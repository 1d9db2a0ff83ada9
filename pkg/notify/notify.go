// Package notify delivers fire-and-forget alerts when a reconciliation run
// fails, and manages the alert subscription list.
package notify

import (
	"context"
	"fmt"

	"github.com/levenlabs/go-lflag"
)

// Subscription is one registered alert recipient.
type Subscription struct {
	Endpoint string `json:"endpoint"`
	ARN      string `json:"arn"`
}

// Notifier is the alerting channel.
type Notifier interface {
	// Notify publishes an alert. Failures to notify are logged by callers
	// and never escalate further.
	Notify(ctx context.Context, subject, message string) error

	// Subscribe registers an email address for alerts. The recipient has to
	// confirm before deliveries start.
	Subscribe(ctx context.Context, email string) error

	// Subscriptions lists the registered recipients.
	Subscriptions(ctx context.Context) ([]Subscription, error)
}

// Configured sets up the notifier provider based on flags.
func Configured() Notifier {
	provider := lflag.String("notify-provider", "sns", "Notifier provider to use (available: sns)")

	var p struct{ Notifier }

	s := configuredSNS()

	lflag.Do(func() {
		switch *provider {
		case "sns":
			if err := s.Validate(); err != nil {
				panic(fmt.Sprintf("sns validation failed: %v", err))
			}
			p.Notifier = s
			if err := s.Init(context.Background()); err != nil {
				panic(fmt.Sprintf("sns init failed: %v", err))
			}
		default:
			panic(fmt.Sprintf("unknown notify provider: %s", *provider))
		}
	})

	return &p
}
