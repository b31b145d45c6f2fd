// Package watchdog tracks consumer-side liveness of the producer.
//
// The watchdog is a pure state machine: the caller feeds it one Event per
// receive attempt together with the current time, and it answers with a
// Decision. Only a good sample moves the last-good instant. Transport
// hiccups and malformed messages degrade the session but never refresh it,
// so a peer that only sends garbage still times out.
package watchdog

import (
	"fmt"
	"time"

	"github.com/billm/imulink/pkg/types"
)

// State is the liveness state of a session
type State int

const (
	// StateLive means the most recent receive attempt delivered a good sample
	StateLive State = iota
	// StateDegraded means receive attempts have failed since the last good sample
	StateDegraded
	// StateTerminated is absorbing; the session must end
	StateTerminated
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateLive:
		return "live"
	case StateDegraded:
		return "degraded"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Reason explains why a session terminated
type Reason int

const (
	ReasonNone Reason = iota
	ReasonPeerClosed
	ReasonIdleTimeout
)

// String returns the string representation of the reason
func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonPeerClosed:
		return "peer_closed"
	case ReasonIdleTimeout:
		return "idle_timeout"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}

// Event is the classified result of one receive attempt
type Event int

const (
	// EventSample is a correctly framed, decoded sample
	EventSample Event = iota
	// EventTransient is a retryable receive failure or a framing violation
	EventTransient
	// EventClosed is a peer disconnect
	EventClosed
)

// String returns the string representation of the event
func (e Event) String() string {
	switch e {
	case EventSample:
		return "sample"
	case EventTransient:
		return "transient"
	case EventClosed:
		return "closed"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

// Decision is the watchdog's answer to an observation
type Decision struct {
	State  State
	Reason Reason
	// Elapsed is the time since the last good sample, truncated to whole
	// milliseconds
	Elapsed time.Duration
}

// Terminated reports whether the session must end
func (d Decision) Terminated() bool {
	return d.State == StateTerminated
}

// Err returns the coded error describing a termination, or nil
func (d Decision) Err() error {
	switch {
	case !d.Terminated():
		return nil
	case d.Reason == ReasonIdleTimeout:
		return types.NewError(types.ErrCodeIdleTimeout,
			fmt.Sprintf("no valid sample for %s", d.Elapsed))
	default:
		return types.NewError(types.ErrCodePeerClosed, "peer closed the connection")
	}
}

// transitions lists the state changes Observe may make
var transitions = map[State][]State{
	StateLive:       {StateDegraded, StateTerminated},
	StateDegraded:   {StateLive, StateTerminated},
	StateTerminated: {}, // Terminal state
}

// Watchdog decides when an idle or closed session must terminate.
// It is not safe for concurrent use.
type Watchdog struct {
	timeout  time.Duration
	lastGood time.Time
	since    time.Time
	state    State
	reason   Reason
}

// New creates a watchdog whose idle window starts at start. The timeout
// must be at least one millisecond.
func New(timeout time.Duration, start time.Time) (*Watchdog, error) {
	if timeout < time.Millisecond {
		return nil, types.NewError(types.ErrCodeConfig,
			fmt.Sprintf("timeout must be at least 1ms, got %s", timeout))
	}
	return &Watchdog{
		timeout:  timeout,
		lastGood: start,
		state:    StateLive,
	}, nil
}

// Observe records one receive outcome at now and returns the resulting
// decision. A closed event terminates immediately. Otherwise the session
// terminates once the whole milliseconds elapsed since the last good sample
// exceed the timeout. Once terminated, further observations are ignored.
func (w *Watchdog) Observe(ev Event, now time.Time) Decision {
	if w.state == StateTerminated {
		return w.decision(now)
	}

	switch ev {
	case EventClosed:
		w.transition(StateTerminated)
		w.reason = ReasonPeerClosed
		return w.decision(now)
	case EventSample:
		w.lastGood = now
		w.transition(StateLive)
	default:
		if w.state == StateLive {
			w.since = now
		}
		w.transition(StateDegraded)
	}

	if w.elapsed(now) > w.timeout {
		w.transition(StateTerminated)
		w.reason = ReasonIdleTimeout
	}
	return w.decision(now)
}

// elapsed returns the time since the last good sample truncated to whole
// milliseconds
func (w *Watchdog) elapsed(now time.Time) time.Duration {
	return now.Sub(w.lastGood).Truncate(time.Millisecond)
}

func (w *Watchdog) decision(now time.Time) Decision {
	return Decision{
		State:   w.state,
		Reason:  w.reason,
		Elapsed: w.elapsed(now),
	}
}

// CanTransition checks if a transition to the target state is valid
func (w *Watchdog) CanTransition(target State) bool {
	for _, allowed := range transitions[w.state] {
		if allowed == target {
			return true
		}
	}
	return false
}

func (w *Watchdog) transition(target State) {
	if w.state == target {
		return
	}
	if !w.CanTransition(target) {
		panic(fmt.Sprintf("watchdog: invalid state transition: %s -> %s", w.state, target))
	}
	w.state = target
}

// State returns the current state
func (w *Watchdog) State() State {
	return w.state
}

// Reason returns why the session terminated, or ReasonNone
func (w *Watchdog) Reason() Reason {
	return w.reason
}

// LastGood returns the instant of the last good sample, or the start time
// if none has arrived
func (w *Watchdog) LastGood() time.Time {
	return w.lastGood
}

// DegradedSince returns when the current degraded stretch began. It is
// only meaningful in StateDegraded.
func (w *Watchdog) DegradedSince() time.Time {
	return w.since
}

// Timeout returns the configured idle window
func (w *Watchdog) Timeout() time.Duration {
	return w.timeout
}

// String returns a string representation of the watchdog
func (w *Watchdog) String() string {
	return fmt.Sprintf("Watchdog{State: %s, Reason: %s, Timeout: %s}", w.state, w.reason, w.timeout)
}
