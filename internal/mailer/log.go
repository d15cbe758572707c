package mailer

import (
	"context"
	"sync"

	"github.com/civicworks/councilmail/internal/pkg/logger"
	"github.com/google/uuid"
)

// LogSender is the "log" mailer driver: the dispatch pipeline runs end
// to end and every message is recorded instead of delivered. Also used
// as the capturing fake in tests.
type LogSender struct {
	mu   sync.Mutex
	sent []Message
}

// NewLogSender creates a capturing sender.
func NewLogSender() *LogSender { return &LogSender{} }

// Send records the message and reports success.
func (l *LogSender) Send(_ context.Context, msg *Message) (string, error) {
	l.mu.Lock()
	l.sent = append(l.sent, *msg)
	l.mu.Unlock()

	logger.Info("simulated send", "email", msg.To, "campaign_id", msg.CampaignID)
	return "sim-" + uuid.New().String(), nil
}

// Sent returns a copy of everything recorded so far.
func (l *LogSender) Sent() []Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Message, len(l.sent))
	copy(out, l.sent)
	return out
}
