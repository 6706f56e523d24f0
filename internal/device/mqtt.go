package device

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/MrWong99/jarvis/internal/config"
	"github.com/MrWong99/jarvis/pkg/types"
)

// publisher is the subset of [paho.Client] the sink needs.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload any) paho.Token
}

// MQTTSink publishes the device state as a retained JSON message.
type MQTTSink struct {
	pub    publisher
	client paho.Client
	topic  string
	dl     *deliverer
}

// StateTopic returns the topic the device state is published on.
func StateTopic(prefix string) string { return prefix + "/home/state" }

// DialMQTT connects to the broker in cfg and returns a sink. The client
// reconnects on its own; a lost connection is logged.
func DialMQTT(cfg config.MQTTConfig, opts ...Option) (*MQTTSink, error) {
	po := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true)
	if cfg.Username != "" {
		po.SetUsername(cfg.Username)
		po.SetPassword(cfg.Password)
	}
	po.SetConnectionLostHandler(func(_ paho.Client, err error) {
		slog.Warn("device: mqtt connection lost", "broker", cfg.Broker, "err", err)
	})

	client := paho.NewClient(po)
	if tok := client.Connect(); tok.Wait() && tok.Error() != nil {
		return nil, fmt.Errorf("device: mqtt connect %q: %w", cfg.Broker, tok.Error())
	}
	s := newMQTTSink(client, cfg.TopicPrefix, opts)
	s.client = client
	return s, nil
}

func newMQTTSink(pub publisher, prefix string, opts []Option) *MQTTSink {
	return &MQTTSink{pub: pub, topic: StateTopic(prefix), dl: newDeliverer("mqtt", opts)}
}

// Notify publishes state with QoS 1. It returns immediately.
func (s *MQTTSink) Notify(state types.DeviceState) {
	s.dl.fire("publish", func(ctx context.Context) error {
		payload, err := json.Marshal(state)
		if err != nil {
			return fmt.Errorf("device: mqtt: marshal: %w", err)
		}
		tok := s.pub.Publish(s.topic, 1, true, payload)
		select {
		case <-tok.Done():
			if err := tok.Error(); err != nil {
				return fmt.Errorf("device: mqtt publish %q: %w", s.topic, err)
			}
			return nil
		case <-ctx.Done():
			return fmt.Errorf("device: mqtt publish %q: %w", s.topic, ctx.Err())
		}
	})
}

// Close waits for in-flight publishes and disconnects.
func (s *MQTTSink) Close() {
	s.dl.wait()
	if s.client != nil {
		s.client.Disconnect(250)
	}
}
