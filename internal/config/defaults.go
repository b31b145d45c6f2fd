package config

import "time"

const (
	// Environment variable names
	EnvSocketPath        = "IMULINK_SOCKET_PATH"
	EnvLogLevel          = "IMULINK_LOG_LEVEL"
	EnvLogFormat         = "IMULINK_LOG_FORMAT"
	EnvLogOutput         = "IMULINK_LOG_OUTPUT"
	EnvFrequencyHz       = "IMULINK_FREQUENCY_HZ"
	EnvTimeoutMs         = "IMULINK_TIMEOUT_MS"
	EnvReconnectAttempts = "IMULINK_RECONNECT_ATTEMPTS"
	EnvMQTTBroker        = "IMULINK_MQTT_BROKER"
)

const (
	// Default endpoint settings
	DefaultSocketPath = "/tmp/dummy_socket"

	// Default logging settings
	DefaultLogLevel  = "INFO"
	DefaultLogFormat = "text"
	DefaultLogOutput = "split"

	// Default producer settings
	DefaultFrequencyHz       = 1
	DefaultSource            = SourceRandom
	DefaultReconnectAttempts = 1
	DefaultReconnectDelay    = 0 * time.Millisecond
	DefaultReconnectMaxDelay = 1 * time.Second

	// Default consumer settings
	DefaultTimeoutMs   = 1000
	DefaultHistorySize = 64

	// Default MQTT bridge settings
	DefaultMQTTClientID = "imulink-consumer"
	DefaultMQTTTopic    = "imulink/sample"
)

// Sample sources understood by the producer
const (
	SourceRandom   = "random"
	SourceSequence = "sequence"
	SourceReplay   = "replay"
)

// DefaultLoggingConfig returns the default logging configuration
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:  DefaultLogLevel,
		Format: DefaultLogFormat,
		Output: DefaultLogOutput,
	}
}

// DefaultEndpointConfig returns the default endpoint configuration
func DefaultEndpointConfig() EndpointConfig {
	return EndpointConfig{
		SocketPath: DefaultSocketPath,
	}
}

// DefaultProducerConfig returns the default producer configuration
func DefaultProducerConfig() ProducerConfig {
	return ProducerConfig{
		FrequencyHz:       DefaultFrequencyHz,
		Count:             0,
		Source:            DefaultSource,
		ReconnectAttempts: DefaultReconnectAttempts,
		ReconnectDelay:    DefaultReconnectDelay,
		ReconnectMaxDelay: DefaultReconnectMaxDelay,
		ReconnectJitter:   false,
	}
}

// DefaultConsumerConfig returns the default consumer configuration.
// PollInterval and AcceptTimeout are zero: receive and accept block
// without bound unless configured otherwise.
func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		TimeoutMs:     DefaultTimeoutMs,
		PollInterval:  0,
		AcceptTimeout: 0,
		HistorySize:   DefaultHistorySize,
		LogSamples:    true,
	}
}

// DefaultMQTTConfig returns the default MQTT bridge configuration (disabled)
func DefaultMQTTConfig() MQTTConfig {
	return MQTTConfig{
		Broker:   "",
		ClientID: DefaultMQTTClientID,
		Topic:    DefaultMQTTTopic,
	}
}

// Default returns a configuration populated with every default
func Default() *Config {
	return &Config{
		Logging:  DefaultLoggingConfig(),
		Endpoint: DefaultEndpointConfig(),
		Producer: DefaultProducerConfig(),
		Consumer: DefaultConsumerConfig(),
		MQTT:     DefaultMQTTConfig(),
	}
}
