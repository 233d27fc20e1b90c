package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMembership_JoinConfirmLeaveCycle(t *testing.T) {
	m := &membership{}
	assert.Equal(t, StateNotJoined, m.current())

	require.NoError(t, m.requestJoin())
	assert.Equal(t, StateJoinRequested, m.current())
	assert.False(t, m.isJoined())

	assert.ErrorIs(t, m.requestJoin(), ErrJoinPending)

	assert.True(t, m.confirmJoin())
	assert.Equal(t, StateJoined, m.current())
	assert.True(t, m.isJoined())

	assert.ErrorIs(t, m.requestJoin(), ErrAlreadyJoined)

	require.NoError(t, m.requestLeave())
	assert.Equal(t, StateLeaveRequested, m.current())

	m.reset()
	assert.Equal(t, StateNotJoined, m.current())
}

func TestMembership_ConfirmJoinIdempotent(t *testing.T) {
	m := &membership{}
	require.NoError(t, m.requestJoin())
	assert.True(t, m.confirmJoin())
	// A duplicate confirmation changes nothing.
	assert.False(t, m.confirmJoin())
	assert.Equal(t, StateJoined, m.current())
}

func TestMembership_ServerInitiatedConfirmAccepted(t *testing.T) {
	m := &membership{}
	assert.True(t, m.confirmJoin())
	assert.True(t, m.isJoined())
}

func TestMembership_LeaveRequiresJoined(t *testing.T) {
	m := &membership{}
	assert.ErrorIs(t, m.requestLeave(), ErrNotJoined)

	require.NoError(t, m.requestJoin())
	assert.ErrorIs(t, m.requestLeave(), ErrNotJoined)
}

func TestMembership_InitialRequestGuard(t *testing.T) {
	m := &membership{}
	assert.True(t, m.markInitialRequested())
	assert.False(t, m.markInitialRequested())

	// Reset re-arms the guard so a fresh join re-requests.
	m.reset()
	assert.True(t, m.markInitialRequested())
}

func TestMembershipState_String(t *testing.T) {
	assert.Equal(t, "not_joined", StateNotJoined.String())
	assert.Equal(t, "join_requested", StateJoinRequested.String())
	assert.Equal(t, "joined", StateJoined.String())
	assert.Equal(t, "leave_requested", StateLeaveRequested.String())
}
