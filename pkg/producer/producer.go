// Package producer publishes samples to the consumer at a fixed rate and
// recovers once from a broken connection.
package producer

import (
	"context"
	"errors"

	"github.com/billm/imulink/internal/logger"
	"github.com/billm/imulink/pkg/payload"
	"github.com/billm/imulink/pkg/scheduler"
	"github.com/billm/imulink/pkg/sensor"
	"github.com/billm/imulink/pkg/types"
)

// Config contains producer configuration
type Config struct {
	Path        string
	FrequencyHz int64
	// Count stops after that many samples. Zero means unbounded.
	Count             int
	ReconnectAttempts int
	Backoff           BackoffConfig
	// Clock defaults to the real clock
	Clock scheduler.Clock
}

// Producer reads samples from a source and sends one per period
type Producer struct {
	source sensor.Source
	rate   *scheduler.Rate
	sup    *Supervisor
	logger *logger.Logger
}

// New creates a producer. The frequency is validated here, so a bad value
// fails before any connection is attempted.
func New(cfg Config, src sensor.Source, dialer Dialer, log *logger.Logger) (*Producer, error) {
	if log == nil {
		var err error
		log, err = logger.NewDefault()
		if err != nil {
			return nil, types.WrapError(types.ErrCodeInternal, "failed to create default logger", err)
		}
	}
	if src == nil {
		return nil, types.NewError(types.ErrCodeInvalidArgument, "sample source cannot be nil")
	}

	rate, err := scheduler.New(scheduler.Config{
		FrequencyHz:   cfg.FrequencyHz,
		MaxIterations: cfg.Count,
		Clock:         cfg.Clock,
	}, log)
	if err != nil {
		return nil, err
	}

	sup, err := NewSupervisor(SupervisorConfig{
		Path:              cfg.Path,
		ReconnectAttempts: cfg.ReconnectAttempts,
		Backoff:           cfg.Backoff,
	}, dialer, log)
	if err != nil {
		return nil, err
	}

	return &Producer{
		source: src,
		rate:   rate,
		sup:    sup,
		logger: log.With("component", "producer"),
	}, nil
}

// Run connects and publishes until the sample count is reached, the source
// runs dry, ctx is canceled or a send cannot be recovered. The first three
// return nil. An unrecoverable failure returns a CONNECT or SEND error.
func (p *Producer) Run(ctx context.Context) error {
	if err := p.sup.Connect(ctx); err != nil {
		return err
	}
	defer p.sup.Close()

	p.logger.Info("Publishing samples", "period", p.rate.Period().String())

	buf := make([]byte, 0, payload.Size)
	err := p.rate.Run(ctx, func(ctx context.Context) error {
		s, err := p.source.Next()
		if err != nil {
			return err
		}
		buf = payload.AppendEncode(buf[:0], s)
		if err := p.sup.Send(ctx, buf); err != nil {
			return err
		}
		p.logger.Info("Sent sample", "bytes", len(buf))
		return nil
	})

	switch {
	case err == nil:
		p.logger.Info("Sample count reached", "stats", p.Stats().String())
		return nil
	case errors.Is(err, sensor.ErrExhausted):
		p.logger.Info("Sample source exhausted", "stats", p.Stats().String())
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		if ctx.Err() != nil {
			p.logger.Info("Producer stopped", "reason", ctx.Err().Error())
			return nil
		}
		return err
	default:
		p.logger.Error("Producer failed", "error", err, "stats", p.Stats().String())
		return err
	}
}

// Stats returns producer statistics
func (p *Producer) Stats() SupervisorStats {
	return p.sup.Stats()
}
