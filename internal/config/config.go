package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/billm/imulink/pkg/types"
)

// Config represents the complete configuration shared by the producer and
// consumer binaries. Each binary validates only the sections it uses.
type Config struct {
	Logging  LoggingConfig  `json:"logging" yaml:"logging" toml:"logging"`
	Endpoint EndpointConfig `json:"endpoint" yaml:"endpoint" toml:"endpoint"`
	Producer ProducerConfig `json:"producer" yaml:"producer" toml:"producer"`
	Consumer ConsumerConfig `json:"consumer" yaml:"consumer" toml:"consumer"`
	MQTT     MQTTConfig     `json:"mqtt" yaml:"mqtt" toml:"mqtt"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level" toml:"level"`    // NONE, ERROR, INFO (also debug, warn)
	Format string `json:"format" yaml:"format" toml:"format"` // text, json, console
	Output string `json:"output" yaml:"output" toml:"output"` // split, stdout, stderr, file path
}

// EndpointConfig contains the local socket address
type EndpointConfig struct {
	SocketPath string `json:"socket_path" yaml:"socket_path" toml:"socket_path"`
}

// ProducerConfig contains publisher settings
type ProducerConfig struct {
	FrequencyHz       int64         `json:"frequency_hz" yaml:"frequency_hz" toml:"frequency_hz"`
	Count             int           `json:"count" yaml:"count" toml:"count"` // 0 = unbounded
	Source            string        `json:"source" yaml:"source" toml:"source"`
	ReplayFile        string        `json:"replay_file" yaml:"replay_file" toml:"replay_file"`
	ReconnectAttempts int           `json:"reconnect_attempts" yaml:"reconnect_attempts" toml:"reconnect_attempts"`
	ReconnectDelay    time.Duration `json:"reconnect_delay" yaml:"reconnect_delay" toml:"reconnect_delay"`
	ReconnectMaxDelay time.Duration `json:"reconnect_max_delay" yaml:"reconnect_max_delay" toml:"reconnect_max_delay"`
	ReconnectJitter   bool          `json:"reconnect_jitter" yaml:"reconnect_jitter" toml:"reconnect_jitter"`
}

// ConsumerConfig contains subscriber settings
type ConsumerConfig struct {
	TimeoutMs     int64         `json:"timeout_ms" yaml:"timeout_ms" toml:"timeout_ms"`
	PollInterval  time.Duration `json:"poll_interval" yaml:"poll_interval" toml:"poll_interval"`
	AcceptTimeout time.Duration `json:"accept_timeout" yaml:"accept_timeout" toml:"accept_timeout"`
	HistorySize   int           `json:"history_size" yaml:"history_size" toml:"history_size"`
	LogSamples    bool          `json:"log_samples" yaml:"log_samples" toml:"log_samples"`
}

// MQTTConfig contains the optional MQTT republisher settings.
// The bridge is enabled when Broker is non-empty.
type MQTTConfig struct {
	Broker   string `json:"broker" yaml:"broker" toml:"broker"`
	ClientID string `json:"client_id" yaml:"client_id" toml:"client_id"`
	Topic    string `json:"topic" yaml:"topic" toml:"topic"`
}

// Enabled reports whether samples should be republished over MQTT
func (c MQTTConfig) Enabled() bool {
	return strings.TrimSpace(c.Broker) != ""
}

// Timeout returns the idle timeout as a duration
func (c ConsumerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// applyEnvOverrides applies IMULINK_* environment variables on top of cfg
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv(EnvSocketPath); v != "" {
		cfg.Endpoint.SocketPath = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv(EnvLogOutput); v != "" {
		cfg.Logging.Output = v
	}
	if v := os.Getenv(EnvFrequencyHz); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return types.WrapError(types.ErrCodeConfig, "invalid "+EnvFrequencyHz, err)
		}
		cfg.Producer.FrequencyHz = n
	}
	if v := os.Getenv(EnvTimeoutMs); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return types.WrapError(types.ErrCodeConfig, "invalid "+EnvTimeoutMs, err)
		}
		cfg.Consumer.TimeoutMs = n
	}
	if v := os.Getenv(EnvReconnectAttempts); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return types.WrapError(types.ErrCodeConfig, "invalid "+EnvReconnectAttempts, err)
		}
		cfg.Producer.ReconnectAttempts = n
	}
	if v := os.Getenv(EnvMQTTBroker); v != "" {
		cfg.MQTT.Broker = v
	}
	return nil
}

// Validate checks the sections shared by both binaries
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Endpoint.SocketPath) == "" {
		return types.NewError(types.ErrCodeConfig, "socket path cannot be empty")
	}
	// sockaddr_un.sun_path is 108 bytes including the terminator
	if len(c.Endpoint.SocketPath) > 107 {
		return types.NewError(types.ErrCodeConfig,
			fmt.Sprintf("socket path too long: %d bytes (max 107)", len(c.Endpoint.SocketPath)))
	}

	validLogFormats := map[string]bool{
		"text":    true,
		"json":    true,
		"console": true,
	}
	if !validLogFormats[strings.ToLower(c.Logging.Format)] {
		return types.NewError(types.ErrCodeConfig,
			fmt.Sprintf("invalid log format: %s (must be text, json, or console)", c.Logging.Format))
	}
	return nil
}

// ValidateProducer checks the shared sections plus producer settings
func (c *Config) ValidateProducer() error {
	if err := c.Validate(); err != nil {
		return err
	}
	p := c.Producer
	if p.FrequencyHz <= 0 {
		return types.NewError(types.ErrCodeConfig, "frequency-hz must be greater than 0")
	}
	if p.FrequencyHz > 1000 {
		return types.NewError(types.ErrCodeConfig,
			fmt.Sprintf("frequency-hz must be at most 1000 (period is whole milliseconds), got %d", p.FrequencyHz))
	}
	if p.Count < 0 {
		return types.NewError(types.ErrCodeConfig, "count cannot be negative")
	}
	switch p.Source {
	case SourceRandom, SourceSequence:
	case SourceReplay:
		if strings.TrimSpace(p.ReplayFile) == "" {
			return types.NewError(types.ErrCodeConfig, "replay source requires a replay file")
		}
	default:
		return types.NewError(types.ErrCodeConfig,
			fmt.Sprintf("invalid source: %s (must be random, sequence, or replay)", p.Source))
	}
	if p.ReconnectAttempts < 0 {
		return types.NewError(types.ErrCodeConfig, "reconnect attempts cannot be negative")
	}
	if p.ReconnectDelay < 0 || p.ReconnectMaxDelay < 0 {
		return types.NewError(types.ErrCodeConfig, "reconnect delays cannot be negative")
	}
	return nil
}

// ValidateConsumer checks the shared sections plus consumer settings
func (c *Config) ValidateConsumer() error {
	if err := c.Validate(); err != nil {
		return err
	}
	cc := c.Consumer
	if cc.TimeoutMs <= 0 {
		return types.NewError(types.ErrCodeConfig, "timeout-ms must be greater than 0")
	}
	if cc.PollInterval < 0 {
		return types.NewError(types.ErrCodeConfig, "poll interval cannot be negative")
	}
	if cc.AcceptTimeout < 0 {
		return types.NewError(types.ErrCodeConfig, "accept timeout cannot be negative")
	}
	if cc.HistorySize < 0 {
		return types.NewError(types.ErrCodeConfig, "history size cannot be negative")
	}
	if c.MQTT.Enabled() && strings.TrimSpace(c.MQTT.Topic) == "" {
		return types.NewError(types.ErrCodeConfig, "mqtt topic cannot be empty when a broker is set")
	}
	return nil
}

// String returns a string representation of the configuration
func (c *Config) String() string {
	return fmt.Sprintf("Config{Logging: %v, Endpoint: %v, Producer: %v, Consumer: %v, MQTT: %v}",
		c.Logging, c.Endpoint, c.Producer, c.Consumer, c.MQTT)
}

func (c LoggingConfig) String() string {
	return fmt.Sprintf("LoggingConfig{Level: %s, Format: %s, Output: %s}",
		c.Level, c.Format, c.Output)
}

func (c EndpointConfig) String() string {
	return fmt.Sprintf("EndpointConfig{SocketPath: %s}", c.SocketPath)
}

func (c ProducerConfig) String() string {
	return fmt.Sprintf("ProducerConfig{FrequencyHz: %d, Count: %d, Source: %s, ReconnectAttempts: %d}",
		c.FrequencyHz, c.Count, c.Source, c.ReconnectAttempts)
}

func (c ConsumerConfig) String() string {
	return fmt.Sprintf("ConsumerConfig{TimeoutMs: %d, PollInterval: %s, AcceptTimeout: %s, HistorySize: %d}",
		c.TimeoutMs, c.PollInterval, c.AcceptTimeout, c.HistorySize)
}

func (c MQTTConfig) String() string {
	return fmt.Sprintf("MQTTConfig{Broker: %s, Topic: %s, Enabled: %v}",
		c.Broker, c.Topic, c.Enabled())
}
