// Package bridge republishes received samples to an MQTT broker so other
// tools can watch a session without touching the socket.
package bridge

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/billm/imulink/internal/config"
	"github.com/billm/imulink/internal/logger"
	"github.com/billm/imulink/pkg/payload"
	"github.com/billm/imulink/pkg/types"
)

const (
	// DefaultPublishTimeout bounds how long a single publish may block the
	// receive loop
	DefaultPublishTimeout = 250 * time.Millisecond
	connectTimeout        = 5 * time.Second
	disconnectQuiesceMs   = 250
)

// Publisher sends a payload to a topic
type Publisher interface {
	Publish(topic string, body []byte) error
	Close() error
}

// Sink is a consumer sink that republishes every sample as JSON
type Sink struct {
	pub       Publisher
	topic     string
	logger    *logger.Logger
	published atomic.Uint64
	failed    atomic.Uint64
}

// NewSink creates a sink publishing to topic through pub
func NewSink(pub Publisher, topic string, log *logger.Logger) (*Sink, error) {
	if pub == nil {
		return nil, types.NewError(types.ErrCodeInvalidArgument, "publisher cannot be nil")
	}
	if topic == "" {
		return nil, types.NewError(types.ErrCodeConfig, "mqtt topic cannot be empty")
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Sink{
		pub:    pub,
		topic:  topic,
		logger: log.With("component", "mqtt_bridge", "topic", topic),
	}, nil
}

// Consume publishes s. Failures are counted and returned; the consumer logs
// them and keeps the session running.
func (s *Sink) Consume(sample payload.Sample) error {
	body, err := json.Marshal(sample)
	if err != nil {
		s.failed.Add(1)
		return types.WrapError(types.ErrCodeInternal, "failed to marshal sample", err)
	}
	if err := s.pub.Publish(s.topic, body); err != nil {
		s.failed.Add(1)
		return types.WrapError(types.ErrCodeUnavailable, "failed to publish sample", err)
	}
	s.published.Add(1)
	return nil
}

// Published returns how many samples were published
func (s *Sink) Published() uint64 { return s.published.Load() }

// Failed returns how many samples could not be published
func (s *Sink) Failed() uint64 { return s.failed.Load() }

// Close disconnects the publisher
func (s *Sink) Close() error {
	s.logger.Info("Closing MQTT bridge", "published", s.Published(), "failed", s.Failed())
	return s.pub.Close()
}

// Client is a Publisher backed by a paho MQTT client
type Client struct {
	client  mqtt.Client
	timeout time.Duration
}

// Dial connects to the broker named in cfg
func Dial(cfg config.MQTTConfig, log *logger.Logger) (*Client, error) {
	if !cfg.Enabled() {
		return nil, types.NewError(types.ErrCodeConfig, "mqtt broker is not configured")
	}
	if log != nil {
		mqtt.ERROR = pahoLogger{log: log.With("component", "paho")}
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetConnectTimeout(connectTimeout).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, types.NewError(types.ErrCodeUnavailable,
			fmt.Sprintf("timed out connecting to mqtt broker %s", cfg.Broker))
	}
	if err := token.Error(); err != nil {
		return nil, types.WrapError(types.ErrCodeUnavailable,
			fmt.Sprintf("failed to connect to mqtt broker %s", cfg.Broker), err)
	}

	if log != nil {
		log.Info("Connected to MQTT broker", "broker", cfg.Broker, "client_id", cfg.ClientID)
	}
	return &Client{client: client, timeout: DefaultPublishTimeout}, nil
}

// Publish sends body with QoS 0, not retained
func (c *Client) Publish(topic string, body []byte) error {
	token := c.client.Publish(topic, 0, false, body)
	if !token.WaitTimeout(c.timeout) {
		return fmt.Errorf("publish to %s timed out after %s", topic, c.timeout)
	}
	return token.Error()
}

// Close disconnects from the broker
func (c *Client) Close() error {
	c.client.Disconnect(disconnectQuiesceMs)
	return nil
}

// pahoLogger routes paho's internal error log into the structured logger
type pahoLogger struct {
	log *logger.Logger
}

func (p pahoLogger) Println(v ...interface{}) {
	p.log.Error(fmt.Sprint(v...))
}

func (p pahoLogger) Printf(format string, v ...interface{}) {
	p.log.Error(fmt.Sprintf(format, v...))
}
