package producer

import (
	"context"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/billm/imulink/internal/logger"
	"github.com/billm/imulink/pkg/ipc"
	"github.com/billm/imulink/pkg/types"
)

// Conn is the sending half of a channel endpoint
type Conn interface {
	Send(msg []byte) error
	Close() error
}

// Dialer opens a new connection to the consumer
type Dialer interface {
	Dial(ctx context.Context, path string) (Conn, error)
}

// DialFunc adapts a function to the Dialer interface
type DialFunc func(ctx context.Context, path string) (Conn, error)

// Dial calls f(ctx, path)
func (f DialFunc) Dial(ctx context.Context, path string) (Conn, error) {
	return f(ctx, path)
}

// IPCDialer returns a Dialer backed by ipc.Connect
func IPCDialer(opts ipc.Options) Dialer {
	return DialFunc(func(ctx context.Context, path string) (Conn, error) {
		ep, err := ipc.Connect(ctx, path, opts)
		if err != nil {
			return nil, err
		}
		return ep, nil
	})
}

// SupervisorConfig contains reconnect settings
type SupervisorConfig struct {
	Path string
	// ReconnectAttempts bounds the connect attempts made after a failed
	// send. Zero disables reconnecting.
	ReconnectAttempts int
	Backoff           BackoffConfig
}

// Supervisor owns the producer's connection and recovers from a broken
// peer by reconnecting to the same path and retrying the pending message
// exactly once.
type Supervisor struct {
	cfg    SupervisorConfig
	dialer Dialer
	conn   Conn
	logger *logger.Logger
	rng    *rand.Rand
	sleep  func(ctx context.Context, d time.Duration) error

	sent       atomic.Uint64
	retries    atomic.Uint64
	reconnects atomic.Uint64
}

// NewSupervisor creates a supervisor. It does not connect; call Connect.
func NewSupervisor(cfg SupervisorConfig, dialer Dialer, log *logger.Logger) (*Supervisor, error) {
	if log == nil {
		var err error
		log, err = logger.NewDefault()
		if err != nil {
			return nil, types.WrapError(types.ErrCodeInternal, "failed to create default logger", err)
		}
	}
	if dialer == nil {
		return nil, types.NewError(types.ErrCodeInvalidArgument, "dialer cannot be nil")
	}
	if cfg.Path == "" {
		return nil, types.NewError(types.ErrCodeConfig, "socket path cannot be empty")
	}
	if cfg.ReconnectAttempts < 0 {
		return nil, types.NewError(types.ErrCodeConfig, "reconnect attempts cannot be negative")
	}

	return &Supervisor{
		cfg:    cfg,
		dialer: dialer,
		logger: log.With("component", "supervisor", "socket_path", cfg.Path),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:  sleepCtx,
	}, nil
}

// Connect establishes the initial connection. Failure carries CONNECT.
func (s *Supervisor) Connect(ctx context.Context) error {
	conn, err := s.dialer.Dial(ctx, s.cfg.Path)
	if err != nil {
		if !types.IsErrCode(err, types.ErrCodeConnect) {
			err = types.WrapError(types.ErrCodeConnect, "failed to connect to consumer", err)
		}
		return err
	}
	s.conn = conn
	s.logger.Info("Connected to consumer")
	return nil
}

// Send transmits msg. If the send fails the connection is closed and
// reopened, then msg is sent once more. A failed reconnect returns a
// CONNECT error; a failed retry returns a SEND error. Both are final.
func (s *Supervisor) Send(ctx context.Context, msg []byte) error {
	if s.conn == nil {
		return types.NewError(types.ErrCodeSend, "not connected")
	}

	err := s.conn.Send(msg)
	if err == nil {
		s.sent.Add(1)
		return nil
	}

	if s.cfg.ReconnectAttempts == 0 {
		return types.WrapError(types.ErrCodeSend, "send failed and reconnect is disabled", err)
	}

	s.logger.Error("Send failed, reconnecting", "error", err)

	if err := s.reconnect(ctx); err != nil {
		return err
	}

	s.retries.Add(1)
	if err := s.conn.Send(msg); err != nil {
		return types.WrapError(types.ErrCodeSend, "send failed after reconnect", err)
	}
	s.sent.Add(1)
	s.logger.Info("Resent pending message after reconnect")
	return nil
}

// reconnect closes the current connection and dials the same path, making
// up to ReconnectAttempts attempts with backoff between them
func (s *Supervisor) reconnect(ctx context.Context) error {
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			s.logger.Warn("Failed to close broken connection", "error", err)
		}
		s.conn = nil
	}

	var lastErr error
	for attempt := 1; attempt <= s.cfg.ReconnectAttempts; attempt++ {
		if delay := NextBackoffDelay(s.cfg.Backoff, attempt, s.rng); delay > 0 {
			s.logger.Debug("Waiting before reconnect", "attempt", attempt, "delay", delay.String())
			if err := s.sleep(ctx, delay); err != nil {
				return types.WrapError(types.ErrCodeConnect, "reconnect canceled", err)
			}
		}

		conn, err := s.dialer.Dial(ctx, s.cfg.Path)
		if err == nil {
			s.conn = conn
			s.reconnects.Add(1)
			s.logger.Info("Reconnected to consumer", "attempt", attempt)
			return nil
		}
		lastErr = err
		s.logger.Error("Reconnect attempt failed", "attempt", attempt, "error", err)
	}

	return types.WrapError(types.ErrCodeConnect,
		fmt.Sprintf("reconnect failed after %d attempt(s)", s.cfg.ReconnectAttempts), lastErr)
}

// Close closes the current connection, if any. Safe to call repeatedly.
func (s *Supervisor) Close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// Stats returns supervisor statistics
func (s *Supervisor) Stats() SupervisorStats {
	return SupervisorStats{
		Sent:       s.sent.Load(),
		Retries:    s.retries.Load(),
		Reconnects: s.reconnects.Load(),
	}
}

// SupervisorStats represents supervisor statistics
type SupervisorStats struct {
	Sent       uint64 `json:"sent"`
	Retries    uint64 `json:"retries"`
	Reconnects uint64 `json:"reconnects"`
}

// String returns a string representation of the stats
func (s SupervisorStats) String() string {
	return fmt.Sprintf("SupervisorStats{Sent: %d, Retries: %d, Reconnects: %d}", s.Sent, s.Retries, s.Reconnects)
}
