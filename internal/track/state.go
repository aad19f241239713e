package track

import (
	"errors"
	"strings"
)

// State represents the lifecycle of a track.
type State string

const (
	StatePending    State = "PENDING"
	StateResolving  State = "RESOLVING"
	StateBuffering  State = "BUFFERING"
	StateStreaming  State = "STREAMING"
	StateFinalizing State = "FINALIZING"
	StateSucceeded  State = "SUCCEEDED"
	StateFailed     State = "FAILED"
	StateAborted    State = "ABORTED"
	StateSkipped    State = "SKIPPED"
)

// ErrInvalidTransition is returned when a transition is not allowed from the
// current state.
var ErrInvalidTransition = errors.New("invalid track state transition")

var allStates = []State{
	StatePending,
	StateResolving,
	StateBuffering,
	StateStreaming,
	StateFinalizing,
	StateSucceeded,
	StateFailed,
	StateAborted,
	StateSkipped,
}

var terminalStates = map[State]struct{}{
	StateSucceeded: {},
	StateFailed:    {},
	StateAborted:   {},
	StateSkipped:   {},
}

// forward lists the single happy-path successor of each non-terminal state.
var forward = map[State]State{
	StatePending:    StateResolving,
	StateResolving:  StateBuffering,
	StateBuffering:  StateStreaming,
	StateStreaming:  StateFinalizing,
	StateFinalizing: StateSucceeded,
}

// AllStates returns the ordered list of known states.
func AllStates() []State {
	cp := make([]State, len(allStates))
	copy(cp, allStates)
	return cp
}

// ParseState converts a string into a known State.
func ParseState(value string) (State, bool) {
	normalized := State(strings.ToUpper(strings.TrimSpace(value)))
	for _, s := range allStates {
		if s == normalized {
			return s, true
		}
	}
	return "", false
}

// IsTerminal reports whether no further transition may leave s.
func (s State) IsTerminal() bool {
	_, ok := terminalStates[s]
	return ok
}

// IsActive reports whether a track in s holds the delivery context.
func (s State) IsActive() bool {
	return s == StateBuffering || s == StateStreaming || s == StateFinalizing
}

// CanTransition reports whether from -> to is a legal forward edge.
func CanTransition(from, to State) bool {
	if from.IsTerminal() {
		return false
	}
	switch to {
	case StateFailed, StateAborted:
		return true
	case StateSkipped:
		return from == StateResolving
	}
	return forward[from] == to
}

func (s State) String() string {
	return string(s)
}
