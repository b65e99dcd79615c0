package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAndClosedStates(t *testing.T) {
	require.Len(t, OpenStates(), 11)
	require.Len(t, ClosedStates(), 4)

	for _, s := range OpenStates() {
		assert.True(t, s.IsOpen(), s)
		assert.False(t, s.IsClosed(), s)
		assert.True(t, s.Valid(), s)
	}
	for _, s := range ClosedStates() {
		assert.True(t, s.IsClosed(), s)
		assert.False(t, s.IsOpen(), s)
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, State("BOGUS").Valid())
}

func TestLinearPrefixMovesOnlyForward(t *testing.T) {
	prefix := []State{StateCreated, StateStaged, StateRiskAccepted, StateSent, StateLive, StateCancelRequested}
	for i, from := range prefix {
		for j, to := range prefix {
			got := CanTransition(from, to)
			if j > i {
				assert.True(t, got, "%s -> %s", from, to)
			} else {
				assert.False(t, got, "%s -> %s", from, to)
			}
		}
	}
}

func TestAnyOpenStateReachesAnyClosedState(t *testing.T) {
	for _, from := range OpenStates() {
		for _, to := range ClosedStates() {
			assert.True(t, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestClosedStatesAreTerminal(t *testing.T) {
	for _, from := range ClosedStates() {
		for _, to := range append(OpenStates(), ClosedStates()...) {
			assert.False(t, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestCreatedIsNeverATarget(t *testing.T) {
	for _, from := range append(OpenStates(), ClosedStates()...) {
		assert.False(t, CanTransition(from, StateCreated), "%s -> CREATED", from)
	}
}

func TestClusterInterconnects(t *testing.T) {
	cluster := []State{
		StateCancelSent, StateReplaceRequested, StateReplaceRejected,
		StateReplaceSent, StatePartiallyFilled, StateCancelRequested,
	}
	for _, from := range cluster {
		for _, to := range cluster {
			if from == to {
				continue
			}
			assert.True(t, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestReplaceStatesFallBackToLive(t *testing.T) {
	assert.True(t, CanTransition(StateReplaceRequested, StateLive))
	assert.True(t, CanTransition(StateReplaceSent, StateLive))
	assert.True(t, CanTransition(StateReplaceRejected, StateLive))

	assert.False(t, CanTransition(StateCancelSent, StateLive))
	assert.False(t, CanTransition(StatePartiallyFilled, StateLive))
	assert.False(t, CanTransition(StateCancelRequested, StateLive))
}
