package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/billm/imulink/internal/config"
	"github.com/billm/imulink/internal/logger"
	"github.com/billm/imulink/internal/version"
	"github.com/billm/imulink/pkg/bridge"
	"github.com/billm/imulink/pkg/consumer"
	"github.com/billm/imulink/pkg/types"
)

var (
	// CLI flags
	cfgFile     string
	socketPath  string
	logLevel    string
	logFormat   string
	logOutput   string
	versionFlag bool

	// Consumer CLI flags
	timeoutMs     int64
	pollInterval  time.Duration
	acceptTimeout time.Duration
	historySize   int
	mqttBroker    string
	mqttTopic     string

	// Global variables
	rootLog *logger.Logger
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "imulink-consumer",
	Short: "imulink consumer - receives IMU samples over a local socket",
	Long: `imulink-consumer binds a Unix seqpacket socket, accepts exactly one
producer and decodes every 52-byte IMU sample it sends.

The session ends when the producer disconnects or when no valid sample
arrives within the idle timeout. Both are normal endings.`,
	Version:       version.DefaultVersion,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runConsumer,
}

// runConsumer executes the main consumer logic
func runConsumer(cmd *cobra.Command, args []string) error {
	if versionFlag {
		fmt.Printf("imulink-consumer version %s\n", version.GetVersion())
		return nil
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	rootLog = log

	if err := cfg.ValidateConsumer(); err != nil {
		rootLog.Error("Invalid configuration", "error", err)
		return err
	}

	rootLog.Info("Starting imulink consumer",
		"version", version.GetVersion(),
		"socket_path", cfg.Endpoint.SocketPath,
		"timeout_ms", cfg.Consumer.TimeoutMs)

	history := consumer.NewHistory(cfg.Consumer.HistorySize)
	sinks := []consumer.Sink{history}
	if cfg.Consumer.LogSamples {
		sinks = append(sinks, consumer.NewLogSink(rootLog))
	}

	if cfg.MQTT.Enabled() {
		client, err := bridge.Dial(cfg.MQTT, rootLog)
		if err != nil {
			// The bridge is optional; the session runs without it
			rootLog.Warn("MQTT bridge disabled", "error", err)
		} else {
			mqttSink, err := bridge.NewSink(client, cfg.MQTT.Topic, rootLog)
			if err != nil {
				client.Close()
				return err
			}
			defer mqttSink.Close()
			sinks = append(sinks, mqttSink)
		}
	}

	c, err := consumer.New(consumer.Config{
		Path:          cfg.Endpoint.SocketPath,
		Timeout:       cfg.Consumer.Timeout(),
		PollInterval:  cfg.Consumer.PollInterval,
		AcceptTimeout: cfg.Consumer.AcceptTimeout,
	}, rootLog, sinks...)
	if err != nil {
		rootLog.Error("Failed to create consumer", "error", err)
		return err
	}

	// Set up signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := c.Run(ctx)
	if err != nil {
		if types.IsFatal(err) {
			return err
		}
		rootLog.Info("Consumer finished", "reason", err.Error())
	}

	summary := []any{"samples", res.Samples, "framing_errors", res.Framing, "duration", res.Duration.String()}
	if last, ok := history.Last(); ok {
		summary = append(summary, "last_sample", last.String())
	}
	rootLog.Info("Consumer shutdown complete", summary...)
	return nil
}

// loadConfig loads the config file and environment, then applies any flag
// the user set explicitly
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("socket-path") {
		cfg.Endpoint.SocketPath = socketPath
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = logLevel
	}
	if flags.Changed("log-format") {
		cfg.Logging.Format = logFormat
	}
	if flags.Changed("log-output") {
		cfg.Logging.Output = logOutput
	}
	if flags.Changed("timeout-ms") {
		cfg.Consumer.TimeoutMs = timeoutMs
	}
	if flags.Changed("poll-interval") {
		cfg.Consumer.PollInterval = pollInterval
	}
	if flags.Changed("accept-timeout") {
		cfg.Consumer.AcceptTimeout = acceptTimeout
	}
	if flags.Changed("history") {
		cfg.Consumer.HistorySize = historySize
	}
	if flags.Changed("mqtt-broker") {
		cfg.MQTT.Broker = mqttBroker
	}
	if flags.Changed("mqtt-topic") {
		cfg.MQTT.Topic = mqttTopic
	}
	return cfg, nil
}

func main() {
	// Config file flag
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"Config file path, YAML or TOML (default: built-in defaults plus IMULINK_* env)")

	// Endpoint flags
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket-path", config.DefaultSocketPath,
		"Filesystem path to bind the socket at")

	// Logging flags
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", config.DefaultLogLevel,
		"Log level: NONE, ERROR, INFO (also debug, warn)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", config.DefaultLogFormat,
		"Log format: text, json, console")
	rootCmd.PersistentFlags().StringVar(&logOutput, "log-output", config.DefaultLogOutput,
		"Log output: split, stdout, stderr, or file path")

	// Consumer flags
	rootCmd.Flags().Int64Var(&timeoutMs, "timeout-ms", config.DefaultTimeoutMs,
		"End the session when no valid sample arrives for this many milliseconds")
	rootCmd.Flags().DurationVar(&pollInterval, "poll-interval", 0,
		"Bound each receive wait, e.g. 50ms (0 blocks until a message or close)")
	rootCmd.Flags().DurationVar(&acceptTimeout, "accept-timeout", 0,
		"Give up waiting for a producer after this long (0 waits forever)")
	rootCmd.Flags().IntVar(&historySize, "history", config.DefaultHistorySize,
		"Number of recent samples kept for the end-of-session summary")

	// MQTT bridge flags
	rootCmd.Flags().StringVar(&mqttBroker, "mqtt-broker", "",
		"Republish samples to this MQTT broker, e.g. tcp://localhost:1883")
	rootCmd.Flags().StringVar(&mqttTopic, "mqtt-topic", config.DefaultMQTTTopic,
		"MQTT topic for republished samples")

	// Version flag
	rootCmd.Flags().BoolVar(&versionFlag, "version", false,
		"Show version information")

	// Execute the command
	exitCode := 0
	if err := rootCmd.Execute(); err != nil {
		if rootLog != nil {
			rootLog.Error("Command execution failed", "error", err, "code", types.GetErrorCode(err))
		} else {
			fmt.Fprintln(os.Stderr, "Command execution failed:", err)
		}
		exitCode = 1
	}
	if rootLog != nil {
		rootLog.Close()
	}

	os.Exit(exitCode)
}
