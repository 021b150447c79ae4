// Package events publishes lifecycle notifications (proposal phase changes,
// warnings) to an external bus. Publishing never affects the bot's state.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/oooz/oooz-bot/src/config"
)

// Event kinds.
const (
	SugestiaCreated      = "sugestia.created"
	SugestiaVotingOpened = "sugestia.voting_opened"
	SugestiaPassed       = "sugestia.passed"
	SugestiaRejected     = "sugestia.rejected"
	SugestiaAnnulled     = "sugestia.annulled"
	SugestiaDone         = "sugestia.done"
	SugestiaErased       = "sugestia.erased"
	WarnAdded            = "warn.added"
	WarnRemoved          = "warn.removed"
	WarnExpired          = "warn.expired"
)

// Event is one notification.
type Event struct {
	ID      string         `json:"id"`
	Kind    string         `json:"kind"`
	Time    time.Time      `json:"time"`
	Subject string         `json:"subject"`
	Data    map[string]any `json:"data,omitempty"`
}

// Publisher delivers events to a bus.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// Open builds the publisher selected by cfg.
func Open(cfg config.Events, redisURL string) (Publisher, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "nop":
		return Nop{}, nil
	case "redis":
		if redisURL == "" {
			return nil, fmt.Errorf("events: redis backend needs redis.url")
		}
		return NewRedis(redisURL, cfg.Stream)
	case "nats":
		return NewNATS(cfg.NATSURL, cfg.Subject)
	default:
		return nil, fmt.Errorf("events: unknown backend %q", cfg.Backend)
	}
}

// Emitter stamps and publishes events, logging failures instead of
// returning them. A nil *Emitter drops everything.
type Emitter struct {
	pub Publisher
	log *slog.Logger
	now func() time.Time
}

func NewEmitter(pub Publisher, log *slog.Logger, now func() time.Time) *Emitter {
	if pub == nil {
		pub = Nop{}
	}
	if log == nil {
		log = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &Emitter{pub: pub, log: log.With("component", "events"), now: now}
}

// Emit publishes kind about subject.
func (e *Emitter) Emit(ctx context.Context, kind, subject string, data map[string]any) {
	if e == nil {
		return
	}
	ev := Event{
		ID:      uuid.NewString(),
		Kind:    kind,
		Time:    e.now().UTC(),
		Subject: subject,
		Data:    data,
	}
	if err := e.pub.Publish(ctx, ev); err != nil {
		e.log.Warn("publish failed", "kind", kind, "subject", subject, "error", err)
	}
}

// Close releases the underlying publisher.
func (e *Emitter) Close() error {
	if e == nil {
		return nil
	}
	return e.pub.Close()
}
