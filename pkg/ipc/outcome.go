package ipc

import (
	"github.com/billm/imulink/pkg/types"
)

// OutcomeKind classifies the result of a Receive
type OutcomeKind int

const (
	// OutcomeMessage means one message of N > 0 bytes was read
	OutcomeMessage OutcomeKind = iota
	// OutcomeClosed means the peer disconnected; the session is over
	OutcomeClosed
	// OutcomeTransient means the read failed in a way that may be retried
	OutcomeTransient
)

// String returns the string representation of the kind
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeMessage:
		return "message"
	case OutcomeClosed:
		return "closed"
	case OutcomeTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// Outcome is the result of a single Receive
type Outcome struct {
	Kind OutcomeKind
	// N is the number of bytes placed in the buffer
	N int
	// Truncated is set when the message was longer than the buffer
	Truncated bool
	// Err carries PEER_CLOSED or RECEIVE_TRANSIENT for non-message outcomes
	Err error
}

func closedOutcome(cause error) Outcome {
	return Outcome{
		Kind: OutcomeClosed,
		Err:  types.WrapError(types.ErrCodePeerClosed, "peer closed the connection", cause),
	}
}

func transientOutcome(cause error) Outcome {
	return Outcome{
		Kind: OutcomeTransient,
		Err:  types.WrapError(types.ErrCodeReceiveTransient, "receive failed", cause),
	}
}
