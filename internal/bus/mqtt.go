// internal/bus/mqtt.go
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/tamzrod/baywatch/internal/health"
)

const (
	mqttConnectTimeout = 5 * time.Second
	mqttPublishTimeout = 2 * time.Second
	mqttQoS            = 1
)

var errMQTTTimeout = errors.New("bus mqtt: timeout")

// MQTTPublisher publishes JSON on <prefix>/bays/<id>/status and <prefix>/health.
type MQTTPublisher struct {
	client mqtt.Client
	prefix string
	log    *slog.Logger
}

func NewMQTT(ctx context.Context, cfg Config, log *slog.Logger) (*MQTTPublisher, error) {
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "baywatch-" + uuid.NewString()[:8]
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.URL)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		log.Info("mqtt connection established", "broker", cfg.URL, "client_id", clientID)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warn("mqtt connection lost, will auto-reconnect", "broker", cfg.URL, "err", err)
	}

	client := mqtt.NewClient(opts)
	if err := wait(ctx, client.Connect(), mqttConnectTimeout); err != nil {
		client.Disconnect(0)
		return nil, fmt.Errorf("bus mqtt: connect %s: %w", cfg.URL, err)
	}

	return &MQTTPublisher{client: client, prefix: cfg.TopicPrefix, log: log}, nil
}

// StatusTopic is the topic for one bay's status events.
func StatusTopic(prefix string, bayID int) string {
	return fmt.Sprintf("%s/bays/%d/status", prefix, bayID)
}

// HealthTopic is the topic for health snapshots.
func HealthTopic(prefix string) string {
	return prefix + "/health"
}

func (p *MQTTPublisher) PublishStatus(ctx context.Context, ev Event) error {
	return p.publish(ctx, StatusTopic(p.prefix, ev.BayID), ev, true)
}

func (p *MQTTPublisher) PublishHealth(ctx context.Context, snap health.Snapshot) error {
	return p.publish(ctx, HealthTopic(p.prefix), snap, false)
}

// Status events are retained so a late subscriber sees the current state.
func (p *MQTTPublisher) publish(ctx context.Context, topic string, v any, retained bool) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("bus mqtt: marshal: %w", err)
	}
	if err := wait(ctx, p.client.Publish(topic, mqttQoS, retained, payload), mqttPublishTimeout); err != nil {
		return fmt.Errorf("bus mqtt: publish %s: %w", topic, err)
	}
	p.log.Debug("mqtt published", "topic", topic, "size", len(payload))
	return nil
}

func (p *MQTTPublisher) Close() error {
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
	}
	return nil
}

func wait(ctx context.Context, tok mqtt.Token, timeout time.Duration) error {
	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case <-tok.Done():
		return tok.Error()
	case <-t.C:
		return errMQTTTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}
