package sensor

import (
	"time"

	"github.com/billm/imulink/pkg/payload"
)

// SequenceSource produces a deterministic ramp: the n-th sample (from 0)
// carries n in every axis and n*step as its timestamps. Useful for checking
// ordering and loss on the consumer side.
type SequenceSource struct {
	n      uint32
	stepMs uint32
}

// NewSequenceSource creates a sequence source whose timestamps advance by step
func NewSequenceSource(step time.Duration) *SequenceSource {
	return &SequenceSource{stepMs: uint32(step.Milliseconds())}
}

// Next returns the next sample in the sequence
func (s *SequenceSource) Next() (payload.Sample, error) {
	n := s.n
	s.n++
	ts := n * s.stepMs
	v := float32(n)
	return payload.Sample{
		AccX:          v,
		AccY:          -v,
		AccZ:          v / 2,
		AccTimestamp:  ts,
		GyroX:         int32(n),
		GyroY:         -int32(n),
		GyroZ:         int32(n) * 10,
		GyroTimestamp: ts,
		MagX:          v / 10,
		MagY:          -v / 10,
		MagZ:          v,
		MagTimestamp:  ts,
	}, nil
}

// Index returns how many samples have been produced
func (s *SequenceSource) Index() uint32 {
	return s.n
}
