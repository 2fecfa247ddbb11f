// internal/bus/bus.go
package bus

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tamzrod/baywatch/internal/health"
	"github.com/tamzrod/baywatch/internal/occupancy"
)

// Bus kinds accepted by New.
const (
	KindNone = "none"
	KindNATS = "nats"
	KindMQTT = "mqtt"
)

// Publisher ships bay events and health snapshots to an external broker.
type Publisher interface {
	PublishStatus(ctx context.Context, ev Event) error
	PublishHealth(ctx context.Context, snap health.Snapshot) error
	Close() error
}

// Event is one bay status transition on the wire.
type Event struct {
	ID          string           `json:"id"`
	Seq         uint64           `json:"seq"`
	BayID       int              `json:"bayId"`
	From        occupancy.Status `json:"from"`
	To          occupancy.Status `json:"to"`
	At          time.Time        `json:"at"`
	Confidence  float64          `json:"confidence"`
	IsConnected bool             `json:"isConnected"`
}

// EventFromChange stamps a tracker change with a fresh event id.
func EventFromChange(c occupancy.Change) Event {
	return Event{
		ID:          uuid.NewString(),
		Seq:         c.Seq,
		BayID:       c.BayID,
		From:        c.From,
		To:          c.To,
		At:          c.At,
		Confidence:  c.Confidence,
		IsConnected: c.IsConnected,
	}
}

// Config selects and addresses a broker.
type Config struct {
	Kind        string
	URL         string
	TopicPrefix string
	ClientID    string
}

// New connects the publisher named by cfg.Kind.
func New(ctx context.Context, cfg Config, log *slog.Logger) (Publisher, error) {
	switch cfg.Kind {
	case "", KindNone:
		return Nop{}, nil
	case KindNATS:
		return NewNATS(cfg, log)
	case KindMQTT:
		return NewMQTT(ctx, cfg, log)
	}
	return nil, fmt.Errorf("bus: unknown kind %q", cfg.Kind)
}

// Nop discards everything.
type Nop struct{}

func (Nop) PublishStatus(context.Context, Event) error           { return nil }
func (Nop) PublishHealth(context.Context, health.Snapshot) error { return nil }
func (Nop) Close() error                                         { return nil }
