package client

import "sync"

// MembershipState is the dashboard-room membership state.
type MembershipState int

const (
	StateNotJoined MembershipState = iota
	StateJoinRequested
	StateJoined
	StateLeaveRequested
)

func (s MembershipState) String() string {
	switch s {
	case StateNotJoined:
		return "not_joined"
	case StateJoinRequested:
		return "join_requested"
	case StateJoined:
		return "joined"
	case StateLeaveRequested:
		return "leave_requested"
	}
	return "unknown"
}

// membership tracks dashboard-room state. Join waits for server confirmation,
// leave is optimistic. Transitions:
//
//	not_joined      --requestJoin-->       join_requested
//	join_requested  --confirmJoin-->       joined
//	joined          --requestLeave-->      leave_requested
//	any             --reset-->             not_joined
//
// The initialRequested guard limits request_initial_activities to one emit
// per confirmed join; reset clears it so reconnection restarts the sequence.
type membership struct {
	mu               sync.Mutex
	state            MembershipState
	initialRequested bool
}

func (m *membership) requestJoin() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.state {
	case StateNotJoined:
		m.state = StateJoinRequested
		return nil
	case StateJoinRequested:
		return ErrJoinPending
	default:
		return ErrAlreadyJoined
	}
}

// confirmJoin handles an inbound dashboard_joined. A confirmation for a
// pending request flips to joined; a server-initiated confirmation while
// not_joined is accepted too. Returns whether the state changed.
func (m *membership) confirmJoin() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.state {
	case StateJoinRequested, StateNotJoined:
		m.state = StateJoined
		return true
	}
	return false
}

func (m *membership) requestLeave() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateJoined {
		return ErrNotJoined
	}
	m.state = StateLeaveRequested
	return nil
}

// reset clears membership and request guards, as on disconnect or after an
// optimistic leave.
func (m *membership) reset() {
	m.mu.Lock()
	m.state = StateNotJoined
	m.initialRequested = false
	m.mu.Unlock()
}

func (m *membership) isJoined() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateJoined
}

// markInitialRequested flips the initial-request guard, returning false if it
// was already set for this join.
func (m *membership) markInitialRequested() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.initialRequested {
		return false
	}
	m.initialRequested = true
	return true
}

func (m *membership) current() MembershipState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}
