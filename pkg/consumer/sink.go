package consumer

import (
	"sync"

	"github.com/eapache/queue"

	"github.com/billm/imulink/internal/logger"
	"github.com/billm/imulink/pkg/payload"
)

// Sink receives every decoded sample. An error is logged and the session
// continues.
type Sink interface {
	Consume(s payload.Sample) error
}

// SinkFunc adapts a function to the Sink interface
type SinkFunc func(s payload.Sample) error

// Consume calls f(s)
func (f SinkFunc) Consume(s payload.Sample) error {
	return f(s)
}

// LogSink logs each sample at INFO
type LogSink struct {
	logger *logger.Logger
}

// NewLogSink creates a sink that logs samples to log
func NewLogSink(log *logger.Logger) *LogSink {
	return &LogSink{logger: log}
}

// Consume logs s
func (l *LogSink) Consume(s payload.Sample) error {
	l.logger.Info("Received sample", "bytes", payload.Size, "sample", s.String())
	return nil
}

// History keeps the most recent samples of a session
type History struct {
	mu    sync.RWMutex
	q     *queue.Queue
	limit int
	total uint64
}

// NewHistory creates a history holding at most limit samples. A limit
// below one is raised to one.
func NewHistory(limit int) *History {
	if limit < 1 {
		limit = 1
	}
	return &History{q: queue.New(), limit: limit}
}

// Consume records s, dropping the oldest sample when full
func (h *History) Consume(s payload.Sample) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.q.Add(s)
	for h.q.Length() > h.limit {
		h.q.Remove()
	}
	h.total++
	return nil
}

// Len returns the number of samples held
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.q.Length()
}

// Total returns how many samples were ever recorded
func (h *History) Total() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.total
}

// Last returns the newest sample
func (h *History) Last() (payload.Sample, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.q.Length() == 0 {
		return payload.Sample{}, false
	}
	return h.q.Get(h.q.Length() - 1).(payload.Sample), true
}

// Snapshot returns the held samples, oldest first
func (h *History) Snapshot() []payload.Sample {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]payload.Sample, h.q.Length())
	for i := range out {
		out[i] = h.q.Get(i).(payload.Sample)
	}
	return out
}
