package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTT defaults.
const (
	DefaultMQTTPrefix   = "fallwatch"
	DefaultMQTTClientID = "fallwatch"
	DefaultMQTTTimeout  = 10 * time.Second
)

// MQTTConfig configures the MQTT sink.
type MQTTConfig struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	QoS         byte
	Timeout     time.Duration
}

// MQTT publishes JSON payloads to <prefix>/alert and <prefix>/message.
type MQTT struct {
	client  mqtt.Client
	prefix  string
	qos     byte
	timeout time.Duration
	now     func() time.Time
}

// NewMQTT connects to the broker.
func NewMQTT(cfg MQTTConfig) (*MQTT, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt: broker is required")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = DefaultMQTTClientID
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultMQTTTimeout
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(cfg.Timeout)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.Timeout) {
		return nil, fmt.Errorf("mqtt: connect to %s: timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: connect to %s: %w", cfg.Broker, err)
	}

	return NewMQTTWithClient(client, cfg.TopicPrefix, cfg.QoS, cfg.Timeout), nil
}

// NewMQTTWithClient wraps an existing connected client.
func NewMQTTWithClient(client mqtt.Client, prefix string, qos byte, timeout time.Duration) *MQTT {
	if prefix == "" {
		prefix = DefaultMQTTPrefix
	}
	if qos > 2 {
		qos = 1
	}
	if timeout <= 0 {
		timeout = DefaultMQTTTimeout
	}
	return &MQTT{client: client, prefix: prefix, qos: qos, timeout: timeout, now: time.Now}
}

// SendAlert implements Notifier.
func (m *MQTT) SendAlert(ctx context.Context, a Alert) error {
	body, err := alertPayload(a)
	if err != nil {
		return fmt.Errorf("%w: mqtt: encode alert: %v", ErrNotification, err)
	}
	return m.publish(ctx, m.prefix+"/alert", body)
}

// SendMessage implements Notifier.
func (m *MQTT) SendMessage(ctx context.Context, text string) error {
	body, err := messagePayload(text, m.now())
	if err != nil {
		return fmt.Errorf("%w: mqtt: encode message: %v", ErrNotification, err)
	}
	return m.publish(ctx, m.prefix+"/message", body)
}

func (m *MQTT) publish(ctx context.Context, topic string, body []byte) error {
	token := m.client.Publish(topic, m.qos, false, body)

	timer := time.NewTimer(m.timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("%w: mqtt publish %s: %v", ErrNotification, topic, ctx.Err())
	case <-timer.C:
		return fmt.Errorf("%w: mqtt publish %s: timed out", ErrNotification, topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: mqtt publish %s: %v", ErrNotification, topic, err)
	}
	return nil
}

// Close disconnects from the broker.
func (m *MQTT) Close() {
	m.client.Disconnect(250)
}
