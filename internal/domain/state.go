package domain

// State is the lifecycle state of an Order.
type State string

const (
	StateCreated          State = "CREATED"
	StateStaged           State = "STAGED"
	StateRiskAccepted     State = "RISK_ACCEPTED"
	StateSent             State = "SENT"
	StateLive             State = "LIVE"
	StateCancelRequested  State = "CANCEL_REQUESTED"
	StateCancelSent       State = "CANCEL_SENT"
	StateReplaceRequested State = "REPLACE_REQUESTED"
	StateReplaceRejected  State = "REPLACE_REJECTED"
	StateReplaceSent      State = "REPLACE_SENT"
	StatePartiallyFilled  State = "PARTIALLY_FILLED"

	StateRiskRejected State = "RISK_REJECTED"
	StateRejected     State = "REJECTED"
	StateFilled       State = "FILLED"
	StateCanceled     State = "CANCELED"
)

// OpenStates is the ordered list of open states. The order matters: on the
// linear prefix through CANCEL_REQUESTED an order can only move rightwards.
func OpenStates() []State {
	return []State{
		StateCreated, StateStaged, StateRiskAccepted, StateSent, StateLive,
		StateCancelRequested, StateCancelSent, StateReplaceRequested,
		StateReplaceRejected, StateReplaceSent, StatePartiallyFilled,
	}
}

// ClosedStates is the list of terminal states.
func ClosedStates() []State {
	return []State{StateRiskRejected, StateRejected, StateFilled, StateCanceled}
}

// replaceCluster are the open states an order bounces between once it is on
// the exchange and cancels, replaces or partial fills are in flight.
var replaceCluster = []State{
	StateCancelRequested, StateCancelSent, StateReplaceRequested,
	StateReplaceRejected, StateReplaceSent, StatePartiallyFilled,
}

var openIndex = func() map[State]int {
	m := make(map[State]int, len(OpenStates()))
	for i, s := range OpenStates() {
		m[s] = i
	}
	return m
}()

// IsOpen reports whether s is an open (non-terminal) state.
func (s State) IsOpen() bool {
	_, ok := openIndex[s]
	return ok
}

// IsClosed reports whether s is a terminal state.
func (s State) IsClosed() bool {
	for _, c := range ClosedStates() {
		if s == c {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	return s.IsOpen() || s.IsClosed()
}

// AllowableTransitions returns the set of states reachable from the given
// open state. Any open state may jump to any closed state. On the linear
// prefix (CREATED through CANCEL_REQUESTED) only later open states are
// reachable. Inside the cancel/replace cluster any cluster member is
// reachable, and the replace states may also fall back to LIVE.
func AllowableTransitions(from State) []State {
	targets := append([]State{}, ClosedStates()...)

	idx, open := openIndex[from]
	switch {
	case !open:
		return nil
	case idx <= openIndex[StateCancelRequested]:
		targets = append(targets, OpenStates()[idx+1:]...)
	case from == StateCancelSent || from == StatePartiallyFilled:
		targets = append(targets, replaceCluster...)
	case from == StateReplaceRequested || from == StateReplaceSent || from == StateReplaceRejected:
		targets = append(targets, replaceCluster...)
		targets = append(targets, StateLive)
	}
	return targets
}

// CanTransition reports whether an order in state from may move to state to.
// CREATED is only ever an initial state, never a transition target, and no
// transition leaves a closed state.
func CanTransition(from, to State) bool {
	if from.IsClosed() || to == StateCreated || !to.Valid() {
		return false
	}
	if to.IsClosed() {
		return true
	}
	for _, s := range AllowableTransitions(from) {
		if s == to {
			return true
		}
	}
	return false
}
