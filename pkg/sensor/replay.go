package sensor

import (
	"errors"
	"os"

	"github.com/eapache/queue"
	"gopkg.in/yaml.v3"

	"github.com/billm/imulink/pkg/payload"
	"github.com/billm/imulink/pkg/types"
)

// ReplayFile is the on-disk form of a recorded sample list
type ReplayFile struct {
	// Loop restarts from the first sample once the list is exhausted
	Loop    bool             `yaml:"loop"`
	Samples []payload.Sample `yaml:"samples"`
}

// LoadReplayFile reads a YAML sample list
func LoadReplayFile(path string) (*ReplayFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, types.WrapError(types.ErrCodeNotFound, "replay file not found: "+path, err)
		}
		return nil, types.WrapError(types.ErrCodeConfig, "failed to read replay file: "+path, err)
	}

	var rf ReplayFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		var terr *yaml.TypeError
		if errors.As(err, &terr) {
			return nil, types.WrapError(types.ErrCodeConfig, "YAML type error in "+path, terr)
		}
		return nil, types.WrapError(types.ErrCodeConfig, "failed to parse replay file "+path, err)
	}
	if len(rf.Samples) == 0 {
		return nil, types.NewError(types.ErrCodeConfig, "replay file contains no samples: "+path)
	}
	return &rf, nil
}

// ReplaySource forwards a fixed list of samples in order
type ReplaySource struct {
	q    *queue.Queue
	loop bool
}

// NewReplaySource creates a source that hands out samples in order. With
// loop set it cycles forever, otherwise it returns ErrExhausted at the end.
func NewReplaySource(samples []payload.Sample, loop bool) *ReplaySource {
	q := queue.New()
	for _, s := range samples {
		q.Add(s)
	}
	return &ReplaySource{q: q, loop: loop}
}

// Next returns the next recorded sample
func (r *ReplaySource) Next() (payload.Sample, error) {
	if r.q.Length() == 0 {
		return payload.Sample{}, ErrExhausted
	}
	s := r.q.Remove().(payload.Sample)
	if r.loop {
		r.q.Add(s)
	}
	return s, nil
}

// Remaining returns how many samples are left before exhaustion. A looping
// source always reports its full length.
func (r *ReplaySource) Remaining() int {
	return r.q.Length()
}
