// Package sensor provides the sample sources a producer can publish from.
package sensor

import (
	"fmt"
	"time"

	"github.com/billm/imulink/internal/config"
	"github.com/billm/imulink/pkg/payload"
	"github.com/billm/imulink/pkg/types"
)

// Source yields one sample per call
type Source interface {
	Next() (payload.Sample, error)
}

// ErrExhausted is returned by a finite source once every sample has been
// handed out. Producers treat it as a normal end of stream.
var ErrExhausted = types.NewError(types.ErrCodeExhausted, "sample source exhausted")

// FromConfig builds the source selected in cfg. period is the producer tick
// interval, used as the timestamp step of the sequence source.
func FromConfig(cfg config.ProducerConfig, period time.Duration) (Source, error) {
	switch cfg.Source {
	case config.SourceRandom, "":
		return NewRandomSource(0), nil
	case config.SourceSequence:
		return NewSequenceSource(period), nil
	case config.SourceReplay:
		rf, err := LoadReplayFile(cfg.ReplayFile)
		if err != nil {
			return nil, err
		}
		return NewReplaySource(rf.Samples, rf.Loop), nil
	default:
		return nil, types.NewError(types.ErrCodeConfig, fmt.Sprintf("unknown sample source: %s", cfg.Source))
	}
}

// millisSince returns the whole milliseconds between epoch and now,
// wrapping like the 32-bit sensor counters do
func millisSince(epoch, now time.Time) uint32 {
	return uint32(now.Sub(epoch).Milliseconds())
}
