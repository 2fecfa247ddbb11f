// internal/bus/nats.go
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/tamzrod/baywatch/internal/health"
)

// NATSPublisher publishes JSON on <prefix>.bays.<id>.status and <prefix>.health.
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
	log    *slog.Logger
}

func NewNATS(cfg Config, log *slog.Logger) (*NATSPublisher, error) {
	opts := []nats.Option{
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("nats disconnected", "err", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	}
	if cfg.ClientID != "" {
		opts = append(opts, nats.Name(cfg.ClientID))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("bus nats: connect %s: %w", cfg.URL, err)
	}
	log.Info("nats connected", "url", cfg.URL)

	return &NATSPublisher{conn: conn, prefix: cfg.TopicPrefix, log: log}, nil
}

// StatusSubject is the subject for one bay's status events.
func StatusSubject(prefix string, bayID int) string {
	return fmt.Sprintf("%s.bays.%d.status", prefix, bayID)
}

// HealthSubject is the subject for health snapshots.
func HealthSubject(prefix string) string {
	return prefix + ".health"
}

func (p *NATSPublisher) PublishStatus(_ context.Context, ev Event) error {
	return p.publish(StatusSubject(p.prefix, ev.BayID), ev)
}

func (p *NATSPublisher) PublishHealth(_ context.Context, snap health.Snapshot) error {
	return p.publish(HealthSubject(p.prefix), snap)
}

func (p *NATSPublisher) publish(subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("bus nats: marshal: %w", err)
	}
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("bus nats: publish %s: %w", subject, err)
	}
	return nil
}

func (p *NATSPublisher) Close() error {
	if p.conn == nil {
		return nil
	}
	err := p.conn.Drain()
	p.conn.Close()
	return err
}
