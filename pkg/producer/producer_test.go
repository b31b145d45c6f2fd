package producer

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/billm/imulink/internal/logger"
	"github.com/billm/imulink/pkg/ipc"
	"github.com/billm/imulink/pkg/payload"
	"github.com/billm/imulink/pkg/sensor"
	"github.com/billm/imulink/pkg/types"
)

var errBrokenPipe = errors.New("broken pipe")

type fakeConn struct {
	id       int
	sent     [][]byte
	failSend int // number of sends that fail before succeeding; -1 fails forever
	closed   bool
}

func (c *fakeConn) Send(msg []byte) error {
	if c.closed {
		return types.NewError(types.ErrCodeSend, "closed")
	}
	if c.failSend != 0 {
		if c.failSend > 0 {
			c.failSend--
		}
		return types.WrapError(types.ErrCodeSend, "failed to send message", errBrokenPipe)
	}
	c.sent = append(c.sent, append([]byte(nil), msg...))
	return nil
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

// fakeDialer hands out conns in order; a nil entry is a failed dial
type fakeDialer struct {
	conns []*fakeConn
	dials int
}

func (d *fakeDialer) Dial(ctx context.Context, path string) (Conn, error) {
	i := d.dials
	d.dials++
	if i >= len(d.conns) || d.conns[i] == nil {
		return nil, types.NewError(types.ErrCodeConnect, "connection refused")
	}
	return d.conns[i], nil
}

// fakeClock never blocks
type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) SleepUntil(ctx context.Context, t time.Time) error {
	if t.After(c.now) {
		c.now = t
	}
	return ctx.Err()
}

func newSupervisor(t *testing.T, attempts int, d Dialer) *Supervisor {
	t.Helper()
	s, err := NewSupervisor(SupervisorConfig{Path: "/tmp/test.sock", ReconnectAttempts: attempts}, d, logger.NewNop())
	require.NoError(t, err)
	return s
}

func TestSupervisorRetriesOnceOnNewConnection(t *testing.T) {
	first := &fakeConn{id: 1, failSend: -1}
	second := &fakeConn{id: 2}
	d := &fakeDialer{conns: []*fakeConn{first, second}}
	s := newSupervisor(t, 1, d)

	require.NoError(t, s.Connect(context.Background()))
	msg := []byte("pending")
	require.NoError(t, s.Send(context.Background(), msg))

	assert.True(t, first.closed, "broken connection must be closed")
	assert.Empty(t, first.sent)
	require.Len(t, second.sent, 1)
	assert.Equal(t, msg, second.sent[0])
	assert.Equal(t, 2, d.dials)

	stats := s.Stats()
	assert.EqualValues(t, 1, stats.Sent)
	assert.EqualValues(t, 1, stats.Retries)
	assert.EqualValues(t, 1, stats.Reconnects)
}

func TestSupervisorReconnectFailureIsConnectError(t *testing.T) {
	d := &fakeDialer{conns: []*fakeConn{{failSend: -1}, nil}}
	s := newSupervisor(t, 1, d)

	require.NoError(t, s.Connect(context.Background()))
	err := s.Send(context.Background(), []byte("x"))
	require.Error(t, err)
	assert.True(t, types.IsErrCode(err, types.ErrCodeConnect), "got %v", err)
	assert.Equal(t, 2, d.dials, "exactly one reconnect attempt")
}

func TestSupervisorRetryFailureIsSendError(t *testing.T) {
	d := &fakeDialer{conns: []*fakeConn{{failSend: -1}, {failSend: -1}}}
	s := newSupervisor(t, 1, d)

	require.NoError(t, s.Connect(context.Background()))
	err := s.Send(context.Background(), []byte("x"))
	require.Error(t, err)
	assert.True(t, types.IsErrCode(err, types.ErrCodeSend), "got %v", err)
	assert.ErrorIs(t, err, errBrokenPipe)
	assert.Equal(t, 2, d.dials, "the retry is never retried")
}

func TestSupervisorReconnectDisabled(t *testing.T) {
	d := &fakeDialer{conns: []*fakeConn{{failSend: -1}, {}}}
	s := newSupervisor(t, 0, d)

	require.NoError(t, s.Connect(context.Background()))
	err := s.Send(context.Background(), []byte("x"))
	assert.True(t, types.IsErrCode(err, types.ErrCodeSend))
	assert.Equal(t, 1, d.dials)
}

func TestSupervisorBoundedAttemptsWithBackoff(t *testing.T) {
	good := &fakeConn{}
	d := &fakeDialer{conns: []*fakeConn{{failSend: -1}, nil, nil, good}}
	s, err := NewSupervisor(SupervisorConfig{
		Path:              "/tmp/test.sock",
		ReconnectAttempts: 3,
		Backoff:           BackoffConfig{InitialDelay: 10 * time.Millisecond, Multiplier: 2, MaxDelay: 30 * time.Millisecond},
	}, d, logger.NewNop())
	require.NoError(t, err)

	var delays []time.Duration
	s.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	require.NoError(t, s.Connect(context.Background()))
	require.NoError(t, s.Send(context.Background(), []byte("x")))
	assert.Len(t, good.sent, 1)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 30 * time.Millisecond}, delays)
}

func TestSupervisorNotConnected(t *testing.T) {
	s := newSupervisor(t, 1, &fakeDialer{})
	err := s.Send(context.Background(), []byte("x"))
	assert.True(t, types.IsErrCode(err, types.ErrCodeSend))
	assert.NoError(t, s.Close())
}

func TestNewSupervisorValidation(t *testing.T) {
	_, err := NewSupervisor(SupervisorConfig{Path: "/tmp/x"}, nil, logger.NewNop())
	assert.True(t, types.IsErrCode(err, types.ErrCodeInvalidArgument))

	_, err = NewSupervisor(SupervisorConfig{}, &fakeDialer{}, logger.NewNop())
	assert.True(t, types.IsErrCode(err, types.ErrCodeConfig))

	_, err = NewSupervisor(SupervisorConfig{Path: "/tmp/x", ReconnectAttempts: -1}, &fakeDialer{}, logger.NewNop())
	assert.True(t, types.IsErrCode(err, types.ErrCodeConfig))
}

func TestNextBackoffDelay(t *testing.T) {
	cfg := BackoffConfig{InitialDelay: 100 * time.Millisecond, Multiplier: 2, MaxDelay: time.Second}

	assert.Equal(t, 100*time.Millisecond, NextBackoffDelay(cfg, 1, nil))
	assert.Equal(t, 200*time.Millisecond, NextBackoffDelay(cfg, 2, nil))
	assert.Equal(t, 800*time.Millisecond, NextBackoffDelay(cfg, 4, nil))
	assert.Equal(t, time.Second, NextBackoffDelay(cfg, 10, nil))
	assert.Zero(t, NextBackoffDelay(BackoffConfig{}, 3, nil))

	cfg.Jitter = true
	assert.Equal(t, 100*time.Millisecond, NextBackoffDelay(cfg, 2, nil), "nil rng halves the delay")
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		d := NextBackoffDelay(cfg, 2, rng)
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.Less(t, d, 300*time.Millisecond)
	}
}

func newProducer(t *testing.T, cfg Config, src sensor.Source, d Dialer) *Producer {
	t.Helper()
	if cfg.Path == "" {
		cfg.Path = "/tmp/test.sock"
	}
	if cfg.Clock == nil {
		cfg.Clock = &fakeClock{now: time.Unix(0, 0)}
	}
	p, err := New(cfg, src, d, logger.NewNop())
	require.NoError(t, err)
	return p
}

func TestProducerSendsCountSamples(t *testing.T) {
	conn := &fakeConn{}
	p := newProducer(t, Config{FrequencyHz: 10, Count: 5, ReconnectAttempts: 1},
		sensor.NewSequenceSource(100*time.Millisecond), &fakeDialer{conns: []*fakeConn{conn}})

	require.NoError(t, p.Run(context.Background()))

	require.Len(t, conn.sent, 5)
	for i, msg := range conn.sent {
		require.Len(t, msg, payload.Size)
		s, err := payload.Decode(msg)
		require.NoError(t, err)
		assert.EqualValues(t, i, s.GyroX)
		assert.EqualValues(t, i*100, s.AccTimestamp)
	}
	assert.True(t, conn.closed)
	assert.EqualValues(t, 5, p.Stats().Sent)
}

func TestProducerRecoversMidStream(t *testing.T) {
	first := &fakeConn{}
	second := &fakeConn{}
	d := &fakeDialer{conns: []*fakeConn{first, second}}
	p := newProducer(t, Config{FrequencyHz: 100, Count: 4, ReconnectAttempts: 1},
		sensor.NewSequenceSource(10*time.Millisecond), d)

	// the third sample hits a broken connection
	src := p.source
	calls := 0
	p.source = sourceFunc(func() (payload.Sample, error) {
		calls++
		if calls == 3 {
			first.failSend = -1
		}
		return src.Next()
	})

	require.NoError(t, p.Run(context.Background()))
	assert.Len(t, first.sent, 2)
	require.Len(t, second.sent, 2)
	s, err := payload.Decode(second.sent[0])
	require.NoError(t, err)
	assert.EqualValues(t, 2, s.GyroX, "the pending sample is resent, not skipped")
}

type sourceFunc func() (payload.Sample, error)

func (f sourceFunc) Next() (payload.Sample, error) { return f() }

func TestProducerInitialConnectFailure(t *testing.T) {
	p := newProducer(t, Config{FrequencyHz: 1}, sensor.NewRandomSource(1), &fakeDialer{})
	err := p.Run(context.Background())
	assert.True(t, types.IsErrCode(err, types.ErrCodeConnect))
	assert.True(t, types.IsFatal(err))
}

func TestProducerRejectsBadFrequencyBeforeConnecting(t *testing.T) {
	d := &fakeDialer{conns: []*fakeConn{{}}}
	for _, hz := range []int64{0, -3} {
		_, err := New(Config{Path: "/tmp/x", FrequencyHz: hz}, sensor.NewRandomSource(1), d, logger.NewNop())
		assert.True(t, types.IsErrCode(err, types.ErrCodeConfig))
	}
	assert.Zero(t, d.dials)
}

func TestProducerSourceExhaustedIsGraceful(t *testing.T) {
	conn := &fakeConn{}
	src := sensor.NewReplaySource([]payload.Sample{{AccX: 1}, {AccX: 2}}, false)
	p := newProducer(t, Config{FrequencyHz: 50}, src, &fakeDialer{conns: []*fakeConn{conn}})

	assert.NoError(t, p.Run(context.Background()))
	assert.Len(t, conn.sent, 2)
}

func TestProducerSourceFailureIsFatal(t *testing.T) {
	conn := &fakeConn{}
	calls := 0
	src := sourceFunc(func() (payload.Sample, error) {
		calls++
		if calls == 2 {
			return payload.Sample{}, types.NewError(types.ErrCodeUnavailable, "IMU offline")
		}
		return payload.Sample{}, nil
	})
	p := newProducer(t, Config{FrequencyHz: 50}, src, &fakeDialer{conns: []*fakeConn{conn}})

	err := p.Run(context.Background())
	require.Error(t, err)
	assert.True(t, types.IsErrCode(err, types.ErrCodeUnavailable))
	assert.True(t, types.IsFatal(err))
	assert.NotErrorIs(t, err, sensor.ErrExhausted)
	assert.Len(t, conn.sent, 1)
}

func TestProducerCanceledIsGraceful(t *testing.T) {
	conn := &fakeConn{}
	ctx, cancel := context.WithCancel(context.Background())
	src := sourceFunc(func() (payload.Sample, error) {
		if len(conn.sent) == 3 {
			cancel()
		}
		return payload.Sample{}, nil
	})
	p := newProducer(t, Config{FrequencyHz: 1}, src, &fakeDialer{conns: []*fakeConn{conn}})

	assert.NoError(t, p.Run(ctx))
	assert.GreaterOrEqual(t, len(conn.sent), 3)
}

func TestProducerFailsWhenConsumerGoes(t *testing.T) {
	dir, err := os.MkdirTemp("", "imu")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "s.sock")

	accepted := make(chan *ipc.Endpoint, 1)
	go func() {
		ep, err := ipc.BindAndAccept(context.Background(), path, ipc.Options{Logger: logger.NewNop()})
		if err != nil {
			close(accepted)
			return
		}
		accepted <- ep
	}()

	// wait for the listener before the producer's single connect attempt
	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, 3*time.Second, 5*time.Millisecond)

	p, err := New(Config{Path: path, FrequencyHz: 100, ReconnectAttempts: 1}, sensor.NewRandomSource(1), IPCDialer(ipc.Options{Logger: logger.NewNop()}), logger.NewNop())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()

	ep, ok := <-accepted
	require.True(t, ok, "consumer failed to accept")
	buf := make([]byte, ipc.DefaultReceiveBuffer)
	out := ep.Receive(buf)
	require.Equal(t, ipc.OutcomeMessage, out.Kind)
	assert.Equal(t, payload.Size, out.N)
	require.NoError(t, ep.Close())

	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, types.IsErrCode(err, types.ErrCodeConnect), "got %v", err)
		assert.True(t, types.IsFatal(err))
	case <-time.After(10 * time.Second):
		t.Fatal("producer did not give up")
	}
}
