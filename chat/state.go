package chat

import "tinychat/model"

// State is the phase a generation session is in
type State int

const (
	StateIdle State = iota
	StateRequesting
	StateStreaming
	StateFunctionPending
	StateCompleted
	StateAborted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequesting:
		return "requesting"
	case StateStreaming:
		return "streaming"
	case StateFunctionPending:
		return "function-pending"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// SessionContext is the state of one generation session. It is passed into
// and returned from every transition instead of living in shared fields.
type SessionContext struct {
	ConversationID string
	Title          string
	History        []model.Message
	State          State
	Hop            int // function calls answered so far
}

// withMessage returns a copy of sc with msg appended to its history. The
// history slice is never shared between two contexts.
func (sc SessionContext) withMessage(msg model.Message) SessionContext {
	history := make([]model.Message, len(sc.History), len(sc.History)+1)
	copy(history, sc.History)
	sc.History = append(history, msg)
	return sc
}

// StepKind says whether the orchestrator loop goes on after a step
type StepKind int

const (
	StepContinue StepKind = iota
	StepStop
)

// Step is the result of one exchange: either a context to continue with, or
// a final outcome.
type Step struct {
	Kind    StepKind
	Session SessionContext
	Outcome Outcome
}

func continueWith(sc SessionContext) Step {
	return Step{Kind: StepContinue, Session: sc}
}

func stop(sc SessionContext, outcome Outcome) Step {
	outcome.State = sc.State
	outcome.Hops = sc.Hop
	return Step{Kind: StepStop, Session: sc, Outcome: outcome}
}
