package chat

import (
	"errors"
	"fmt"

	"tinychat/backend"
)

// Sentinel errors
var (
	ErrSessionActive       = errors.New("a response is already being generated for this conversation")
	ErrEmptyMessage        = errors.New("message is empty")
	ErrEmptyResponse       = errors.New("no response received")
	ErrNothingToRegenerate = errors.New("conversation has no user message to regenerate from")
)

// OutcomeKind tells how a session ended
type OutcomeKind int

const (
	OutcomeOK OutcomeKind = iota
	OutcomeCancelled
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOK:
		return "ok"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeFailed:
		return "failed"
	}
	return "unknown"
}

// FailureKind classifies a failed outcome
type FailureKind int

const (
	FailureNone      FailureKind = iota
	FailureTransport             // request could not be sent or was answered with a non-success status
	FailureStream                // body could not be read or carried no content
	FailureStorage               // conversation store rejected a write
	FailureRejected              // request refused before anything was sent
)

func (k FailureKind) String() string {
	switch k {
	case FailureNone:
		return "none"
	case FailureTransport:
		return "transport"
	case FailureStream:
		return "stream"
	case FailureStorage:
		return "storage"
	case FailureRejected:
		return "rejected"
	}
	return "unknown"
}

// Outcome is the result of Submit, Regenerate or Complete
type Outcome struct {
	Kind    OutcomeKind
	Failure FailureKind
	Err     error

	// Text is the visible text of the last assistant reply; partial when cancelled
	Text string

	State           State
	Hops            int
	HopLimitReached bool
}

// OK reports whether the session completed
func (o Outcome) OK() bool {
	return o.Kind == OutcomeOK
}

func (o Outcome) String() string {
	if o.Kind == OutcomeFailed {
		return fmt.Sprintf("failed (%s): %v", o.Failure, o.Err)
	}
	return o.Kind.String()
}

func rejected(err error) Outcome {
	return Outcome{Kind: OutcomeFailed, Failure: FailureRejected, Err: err, State: StateIdle}
}

// errorText is the message shown to the user for a failure
func errorText(kind FailureKind, err error) string {
	switch kind {
	case FailureTransport:
		if code := backend.StatusCode(err); code != 0 {
			return fmt.Sprintf("Error: server returned status %d", code)
		}
		return fmt.Sprintf("Error: could not reach the server (%v)", err)
	case FailureStream:
		if errors.Is(err, ErrEmptyResponse) {
			return "No response received"
		}
		return "Error processing response"
	case FailureStorage:
		return fmt.Sprintf("Error saving conversation: %v", err)
	}
	return fmt.Sprintf("Error: %v", err)
}
