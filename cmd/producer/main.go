package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/billm/imulink/internal/config"
	"github.com/billm/imulink/internal/logger"
	"github.com/billm/imulink/internal/version"
	"github.com/billm/imulink/pkg/ipc"
	"github.com/billm/imulink/pkg/producer"
	"github.com/billm/imulink/pkg/scheduler"
	"github.com/billm/imulink/pkg/sensor"
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

	// Producer CLI flags
	frequencyHz       int64
	count             int
	source            string
	replayFile        string
	reconnectAttempts int

	// Global variables
	rootLog *logger.Logger
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "imulink-producer",
	Short: "imulink producer - publishes IMU samples over a local socket",
	Long: `imulink-producer connects to a waiting consumer over a Unix seqpacket
socket and sends one 52-byte IMU sample per period.

If the consumer goes away mid-session the producer reconnects to the same
path and retries the pending sample once before giving up.`,
	Version:       version.DefaultVersion,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runProducer,
}

// runProducer executes the main producer logic
func runProducer(cmd *cobra.Command, args []string) error {
	if versionFlag {
		fmt.Printf("imulink-producer version %s\n", version.GetVersion())
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

	if err := cfg.ValidateProducer(); err != nil {
		rootLog.Error("Invalid configuration", "error", err)
		return err
	}

	rootLog.Info("Starting imulink producer",
		"version", version.GetVersion(),
		"socket_path", cfg.Endpoint.SocketPath,
		"frequency_hz", cfg.Producer.FrequencyHz,
		"count", cfg.Producer.Count,
		"source", cfg.Producer.Source)

	period, err := scheduler.PeriodFromFrequency(cfg.Producer.FrequencyHz)
	if err != nil {
		rootLog.Error("Invalid frequency", "error", err)
		return err
	}

	src, err := sensor.FromConfig(cfg.Producer, period)
	if err != nil {
		rootLog.Error("Failed to create sample source", "error", err)
		return err
	}

	p, err := producer.New(producer.Config{
		Path:              cfg.Endpoint.SocketPath,
		FrequencyHz:       cfg.Producer.FrequencyHz,
		Count:             cfg.Producer.Count,
		ReconnectAttempts: cfg.Producer.ReconnectAttempts,
		Backoff: producer.BackoffConfig{
			InitialDelay: cfg.Producer.ReconnectDelay,
			MaxDelay:     cfg.Producer.ReconnectMaxDelay,
			Multiplier:   2.0,
			Jitter:       cfg.Producer.ReconnectJitter,
		},
	}, src, producer.IPCDialer(ipc.Options{Logger: rootLog}), rootLog)
	if err != nil {
		rootLog.Error("Failed to create producer", "error", err)
		return err
	}

	// Set up signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := p.Run(ctx); err != nil {
		if types.IsFatal(err) {
			return err
		}
		rootLog.Info("Producer finished", "reason", err.Error())
	}

	rootLog.Info("Producer shutdown complete", "stats", p.Stats().String())
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
	if flags.Changed("frequency-hz") {
		cfg.Producer.FrequencyHz = frequencyHz
	}
	if flags.Changed("count") {
		cfg.Producer.Count = count
	}
	if flags.Changed("source") {
		cfg.Producer.Source = source
	}
	if flags.Changed("replay-file") {
		cfg.Producer.ReplayFile = replayFile
		if !flags.Changed("source") {
			cfg.Producer.Source = config.SourceReplay
		}
	}
	if flags.Changed("reconnect-attempts") {
		cfg.Producer.ReconnectAttempts = reconnectAttempts
	}
	return cfg, nil
}

func main() {
	// Config file flag
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"Config file path, YAML or TOML (default: built-in defaults plus IMULINK_* env)")

	// Endpoint flags
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket-path", config.DefaultSocketPath,
		"Filesystem path of the consumer's socket")

	// Logging flags
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", config.DefaultLogLevel,
		"Log level: NONE, ERROR, INFO (also debug, warn)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", config.DefaultLogFormat,
		"Log format: text, json, console")
	rootCmd.PersistentFlags().StringVar(&logOutput, "log-output", config.DefaultLogOutput,
		"Log output: split, stdout, stderr, or file path")

	// Producer flags
	rootCmd.Flags().Int64Var(&frequencyHz, "frequency-hz", config.DefaultFrequencyHz,
		"Samples per second (1-1000)")
	rootCmd.Flags().IntVar(&count, "count", 0,
		"Stop after this many samples (0 for unbounded)")
	rootCmd.Flags().StringVar(&source, "source", config.DefaultSource,
		"Sample source: random, sequence, replay")
	rootCmd.Flags().StringVar(&replayFile, "replay-file", "",
		"YAML file of samples for the replay source")
	rootCmd.Flags().IntVar(&reconnectAttempts, "reconnect-attempts", config.DefaultReconnectAttempts,
		"Connect attempts after a failed send (0 disables recovery)")

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
