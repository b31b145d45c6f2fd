package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/billm/imulink/internal/logger"
	"github.com/billm/imulink/pkg/types"
)

// Network is the Go network name for SOCK_SEQPACKET Unix sockets
const Network = "unixpacket"

// DefaultReceiveBuffer is large enough to hold any sane message; a longer
// one is reported as truncated
const DefaultReceiveBuffer = 512

// Role identifies which side of the link an endpoint is
type Role string

const (
	RoleConsumer Role = "consumer"
	RoleProducer Role = "producer"
)

// Options tunes endpoint behaviour. The zero value blocks on accept and
// receive without bound.
type Options struct {
	// PollInterval bounds each Receive. When it elapses without a message
	// Receive reports a transient outcome. Zero blocks until data or close.
	PollInterval time.Duration
	// AcceptTimeout bounds BindAndAccept. Zero waits forever.
	AcceptTimeout time.Duration
	Logger        *logger.Logger
}

// Endpoint is one end of an established connection
type Endpoint struct {
	path   string
	role   Role
	conn   *net.UnixConn
	poll   time.Duration
	logger *logger.Logger

	mu     sync.Mutex
	closed bool

	msgsSent  atomic.Uint64
	bytesSent atomic.Uint64
	msgsRecv  atomic.Uint64
	bytesRecv atomic.Uint64
	truncated atomic.Uint64
}

func resolveLogger(log *logger.Logger) (*logger.Logger, error) {
	if log != nil {
		return log, nil
	}
	l, err := logger.NewDefault()
	if err != nil {
		return nil, types.WrapError(types.ErrCodeInternal, "failed to create default logger", err)
	}
	return l, nil
}

// removeStale deletes a socket left behind at path by an earlier run.
// Anything that is not a socket is left alone and reported as a BIND error.
func removeStale(path string) error {
	fi, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return types.WrapError(types.ErrCodeBind, "failed to inspect socket path", err)
	}
	if fi.Mode()&os.ModeSocket == 0 {
		return types.NewError(types.ErrCodeBind,
			fmt.Sprintf("refusing to remove %s: not a socket (mode %s)", path, fi.Mode()))
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return types.WrapError(types.ErrCodeBind, "failed to remove existing socket file", err)
	}
	return nil
}

// BindAndAccept creates a listening endpoint at path, waits for exactly
// one peer and returns the connected endpoint. The listener is closed and
// the path unlinked before returning, so no second peer can connect.
//
// Accept blocks until a peer arrives, opts.AcceptTimeout elapses or ctx is
// canceled. Failures carry the BIND or ACCEPT code.
func BindAndAccept(ctx context.Context, path string, opts Options) (*Endpoint, error) {
	log, err := resolveLogger(opts.Logger)
	if err != nil {
		return nil, err
	}
	log = log.With("component", "ipc_endpoint", "socket_path", path, "role", RoleConsumer)

	if err := removeStale(path); err != nil {
		return nil, err
	}

	ln, err := net.ListenUnix(Network, &net.UnixAddr{Name: path, Net: Network})
	if err != nil {
		return nil, types.WrapError(types.ErrCodeBind, "failed to listen on socket", err)
	}
	ln.SetUnlinkOnClose(true)
	defer ln.Close()

	log.Info("Waiting for producer", "accept_timeout", opts.AcceptTimeout.String())

	if opts.AcceptTimeout > 0 {
		if err := ln.SetDeadline(time.Now().Add(opts.AcceptTimeout)); err != nil {
			return nil, types.WrapError(types.ErrCodeAccept, "failed to set accept deadline", err)
		}
	}

	// Cancellation unblocks AcceptUnix by moving the deadline into the past
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			// Fails only if accept already returned and the listener is closed
			if err := ln.SetDeadline(time.Unix(1, 0)); err != nil {
				log.Debug("Could not interrupt accept", "error", err)
			}
		case <-stop:
		}
	}()

	conn, err := ln.AcceptUnix()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, types.WrapError(types.ErrCodeAccept, "accept canceled", ctxErr)
		}
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return nil, types.WrapError(types.ErrCodeAccept,
				fmt.Sprintf("no producer connected within %s", opts.AcceptTimeout), err)
		}
		return nil, types.WrapError(types.ErrCodeAccept, "failed to accept connection", err)
	}

	ep := &Endpoint{
		path:   path,
		role:   RoleConsumer,
		conn:   conn,
		poll:   opts.PollInterval,
		logger: log,
	}
	log.Info("Producer connected", "poll_interval", opts.PollInterval.String())
	return ep, nil
}

// Connect dials the listener at path. Failure carries the CONNECT code.
func Connect(ctx context.Context, path string, opts Options) (*Endpoint, error) {
	log, err := resolveLogger(opts.Logger)
	if err != nil {
		return nil, err
	}
	log = log.With("component", "ipc_endpoint", "socket_path", path, "role", RoleProducer)

	var d net.Dialer
	c, err := d.DialContext(ctx, Network, path)
	if err != nil {
		return nil, types.WrapError(types.ErrCodeConnect, "failed to connect to "+path, err)
	}
	conn, ok := c.(*net.UnixConn)
	if !ok {
		c.Close()
		return nil, types.NewError(types.ErrCodeConnect, fmt.Sprintf("unexpected connection type %T", c))
	}

	log.Debug("Connected to consumer")
	return &Endpoint{
		path:   path,
		role:   RoleProducer,
		conn:   conn,
		poll:   opts.PollInterval,
		logger: log,
	}, nil
}

// Send transmits msg as a single message. A failure carries the SEND code;
// the caller decides whether to reconnect.
func (e *Endpoint) Send(msg []byte) error {
	if e.isClosed() {
		return types.WrapError(types.ErrCodeSend, "endpoint is closed", net.ErrClosed)
	}

	n, err := e.conn.Write(msg)
	if err != nil {
		return types.WrapError(types.ErrCodeSend, "failed to send message", err)
	}
	if n != len(msg) {
		return types.NewError(types.ErrCodeSend, fmt.Sprintf("short send: wrote %d of %d bytes", n, len(msg)))
	}

	e.msgsSent.Add(1)
	e.bytesSent.Add(uint64(n))
	return nil
}

// Receive waits for one message and reads it into buf
func (e *Endpoint) Receive(buf []byte) Outcome {
	if e.isClosed() {
		return closedOutcome(net.ErrClosed)
	}

	if e.poll > 0 {
		if err := e.conn.SetReadDeadline(time.Now().Add(e.poll)); err != nil {
			return transientOutcome(err)
		}
	}

	n, _, flags, _, err := e.conn.ReadMsgUnix(buf, nil)
	if err != nil {
		return classify(err)
	}
	if n == 0 {
		return closedOutcome(io.EOF)
	}

	out := Outcome{Kind: OutcomeMessage, N: n}
	if flags&unix.MSG_TRUNC != 0 {
		out.Truncated = true
		e.truncated.Add(1)
	}
	e.msgsRecv.Add(1)
	e.bytesRecv.Add(uint64(n))
	return out
}

// classify maps a read error to an outcome. End of stream, a closed socket
// and a reset or broken peer all end the session; anything else, including
// a poll deadline, may be retried.
func classify(err error) Outcome {
	switch {
	case errors.Is(err, io.EOF),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, unix.ECONNRESET),
		errors.Is(err, unix.EPIPE):
		return closedOutcome(err)
	default:
		return transientOutcome(err)
	}
}

func (e *Endpoint) isClosed() bool {
	if e == nil {
		return true
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed || e.conn == nil
}

// Close releases the connection. It is safe to call more than once and on
// a nil endpoint.
func (e *Endpoint) Close() error {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	conn := e.conn
	e.mu.Unlock()

	if conn == nil {
		return nil
	}
	if err := conn.Close(); err != nil {
		return types.WrapError(types.ErrCodeInternal, "failed to close endpoint", err)
	}
	if e.logger != nil {
		e.logger.Debug("Endpoint closed", "stats", e.Stats().String())
	}
	return nil
}

// Path returns the socket path the endpoint was created for
func (e *Endpoint) Path() string {
	return e.path
}

// Stats returns endpoint statistics
func (e *Endpoint) Stats() Stats {
	return Stats{
		Path:          e.path,
		Role:          e.role,
		MessagesSent:  e.msgsSent.Load(),
		BytesSent:     e.bytesSent.Load(),
		MessagesRecv:  e.msgsRecv.Load(),
		BytesRecv:     e.bytesRecv.Load(),
		TruncatedRecv: e.truncated.Load(),
	}
}

// String returns a string representation of the endpoint
func (e *Endpoint) String() string {
	return fmt.Sprintf("Endpoint{Path: %s, Role: %s, Closed: %v}", e.path, e.role, e.isClosed())
}

// Stats represents endpoint statistics
type Stats struct {
	Path          string `json:"path"`
	Role          Role   `json:"role"`
	MessagesSent  uint64 `json:"messages_sent"`
	BytesSent     uint64 `json:"bytes_sent"`
	MessagesRecv  uint64 `json:"messages_received"`
	BytesRecv     uint64 `json:"bytes_received"`
	TruncatedRecv uint64 `json:"truncated_received"`
}

// String returns a string representation of the stats
func (s Stats) String() string {
	return fmt.Sprintf("Stats{Role: %s, Sent: %d/%dB, Received: %d/%dB, Truncated: %d}",
		s.Role, s.MessagesSent, s.BytesSent, s.MessagesRecv, s.BytesRecv, s.TruncatedRecv)
}
