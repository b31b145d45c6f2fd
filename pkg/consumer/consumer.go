// Package consumer runs the receiving side of a session: it accepts one
// producer, decodes every message, hands good samples to sinks and lets the
// watchdog decide when the session is over.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/billm/imulink/internal/logger"
	"github.com/billm/imulink/pkg/ipc"
	"github.com/billm/imulink/pkg/payload"
	"github.com/billm/imulink/pkg/types"
	"github.com/billm/imulink/pkg/watchdog"
)

// Config contains consumer configuration
type Config struct {
	Path          string
	Timeout       time.Duration
	PollInterval  time.Duration
	AcceptTimeout time.Duration
}

// Result summarises a finished session
type Result struct {
	SessionID types.ID
	Reason    watchdog.Reason
	Samples   uint64
	Framing   uint64
	Transient uint64
	Duration  time.Duration
	Stats     ipc.Stats
}

// Err returns the coded error matching the termination reason, or nil
func (r Result) Err() error {
	switch r.Reason {
	case watchdog.ReasonPeerClosed:
		return types.NewError(types.ErrCodePeerClosed, "peer closed the connection")
	case watchdog.ReasonIdleTimeout:
		return types.NewError(types.ErrCodeIdleTimeout, "idle timeout")
	default:
		return nil
	}
}

// String returns a string representation of the result
func (r Result) String() string {
	return fmt.Sprintf("Result{Session: %s, Reason: %s, Samples: %d, Framing: %d, Transient: %d, Duration: %s}",
		r.SessionID, r.Reason, r.Samples, r.Framing, r.Transient, r.Duration)
}

// Consumer receives samples from a single producer
type Consumer struct {
	cfg    Config
	sinks  []Sink
	logger *logger.Logger
	now    func() time.Time
}

// New creates a consumer. The timeout is validated here so a bad value
// fails before the socket is bound.
func New(cfg Config, log *logger.Logger, sinks ...Sink) (*Consumer, error) {
	if log == nil {
		var err error
		log, err = logger.NewDefault()
		if err != nil {
			return nil, types.WrapError(types.ErrCodeInternal, "failed to create default logger", err)
		}
	}
	if cfg.Path == "" {
		return nil, types.NewError(types.ErrCodeConfig, "socket path cannot be empty")
	}
	if _, err := watchdog.New(cfg.Timeout, time.Time{}); err != nil {
		return nil, err
	}
	if cfg.PollInterval < 0 || cfg.AcceptTimeout < 0 {
		return nil, types.NewError(types.ErrCodeConfig, "poll interval and accept timeout cannot be negative")
	}

	return &Consumer{
		cfg:    cfg,
		sinks:  sinks,
		logger: log.With("component", "consumer"),
		now:    time.Now,
	}, nil
}

// Run binds the socket, accepts one producer and receives until the peer
// closes or the idle timeout fires; both end the session normally with a
// nil error. BIND and ACCEPT failures are returned as errors, as is ctx
// cancellation (code CANCELED) once the session is established.
func (c *Consumer) Run(ctx context.Context) (Result, error) {
	ep, err := ipc.BindAndAccept(ctx, c.cfg.Path, ipc.Options{
		PollInterval:  c.cfg.PollInterval,
		AcceptTimeout: c.cfg.AcceptTimeout,
		Logger:        c.logger,
	})
	if err != nil {
		return Result{}, err
	}
	defer ep.Close()

	res := Result{SessionID: types.GenerateID()}
	log := c.logger.With("session_id", res.SessionID.String())

	// Unblock a pending Receive on shutdown
	stop := context.AfterFunc(ctx, func() { ep.Close() })
	defer stop()

	start := c.now()
	wd, err := watchdog.New(c.cfg.Timeout, start)
	if err != nil {
		return Result{}, err
	}

	buf := make([]byte, ipc.DefaultReceiveBuffer)

	for {
		out := ep.Receive(buf)
		now := c.now()

		if ctx.Err() != nil {
			res.Duration = now.Sub(start)
			res.Stats = ep.Stats()
			log.Info("Consumer stopped", "result", res.String())
			return res, types.WrapError(types.ErrCodeCanceled, "consumer canceled", ctx.Err())
		}

		ev := c.handle(log, out, buf, &res)

		prev := wd.State()
		d := wd.Observe(ev, now)
		if d.State != prev && d.State != watchdog.StateTerminated {
			log.Info("Session state changed",
				"from", prev.String(),
				"to", d.State.String(),
				"since_last_good", d.Elapsed.String())
		}

		if d.Terminated() {
			res.Reason = d.Reason
			res.Duration = now.Sub(start)
			res.Stats = ep.Stats()
			if d.Reason == watchdog.ReasonIdleTimeout {
				log.Error("No valid sample within timeout, ending session",
					"timeout", c.cfg.Timeout.String(),
					"since_last_good", d.Elapsed.String())
			}
			log.Info("Session ended", "reason", d.Reason.String(), "result", res.String())
			return res, nil
		}
	}
}

// handle classifies one receive outcome, delivers good samples to the
// sinks and updates the counters
func (c *Consumer) handle(log *logger.Logger, out ipc.Outcome, buf []byte, res *Result) watchdog.Event {
	switch out.Kind {
	case ipc.OutcomeClosed:
		log.Info("Producer disconnected", "reason", out.Err)
		return watchdog.EventClosed

	case ipc.OutcomeTransient:
		res.Transient++
		if errors.Is(out.Err, os.ErrDeadlineExceeded) {
			log.Debug("No message within poll interval")
		} else {
			log.Error("Receive failed", "error", out.Err)
		}
		return watchdog.EventTransient

	default:
		if out.Truncated {
			res.Framing++
			log.Error("Discarding oversized message",
				"received_bytes", out.N,
				"expected_bytes", payload.Size)
			return watchdog.EventTransient
		}

		s, err := payload.Decode(buf[:out.N])
		if err != nil {
			res.Framing++
			log.Error("Discarding malformed message", "error", err)
			return watchdog.EventTransient
		}

		res.Samples++
		for _, sink := range c.sinks {
			if err := sink.Consume(s); err != nil {
				log.Warn("Sink failed", "error", err)
			}
		}
		return watchdog.EventSample
	}
}
