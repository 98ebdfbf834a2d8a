package email

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// NoopSender logs messages instead of delivering them.
type NoopSender struct{}

// NewNoopSender creates a NoopSender.
func NewNoopSender() *NoopSender {
	return &NoopSender{}
}

// Send logs the message and reports success.
func (s *NoopSender) Send(_ context.Context, msg Message) (Receipt, error) {
	if len(msg.To) == 0 {
		return Receipt{}, ErrNoRecipient
	}
	slog.Info("email_skipped", "provider", "noop", "recipients", len(msg.To), "subject", msg.Subject)
	now := time.Now()
	return Receipt{MessageID: fmt.Sprintf("noop-%d", now.UnixNano()), SentAt: now}, nil
}
