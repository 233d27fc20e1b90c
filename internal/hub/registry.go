package hub

import (
	"sync"

	"activityhub/pkg/types"
)

// Subscriber is a live client connection the hub can push envelopes to.
type Subscriber interface {
	UserID() string
	Role() string
	Send(env *types.Envelope) error
	Close() error
}

// Registry tracks live connections and dashboard-room membership. One
// connection per user; a re-register replaces and closes the old handle.
type Registry struct {
	mu        sync.RWMutex
	conns     map[string]Subscriber
	dashboard map[string]Subscriber
}

func NewRegistry() *Registry {
	return &Registry{
		conns:     make(map[string]Subscriber),
		dashboard: make(map[string]Subscriber),
	}
}

// Register adds a connection, replacing any existing one for the same user.
// The replaced handle is closed asynchronously so a slow close cannot block
// registration.
func (r *Registry) Register(sub Subscriber) error {
	if sub == nil {
		return ErrNilSubscriber
	}
	userID := sub.UserID()

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.conns[userID]; ok && existing != sub {
		go existing.Close()
		delete(r.dashboard, userID)
	}
	r.conns[userID] = sub
	return nil
}

// Unregister removes a connection. Only the currently registered instance is
// removed, so a stale handle cannot evict its replacement. Idempotent.
func (r *Registry) Unregister(sub Subscriber) {
	if sub == nil {
		return
	}
	userID := sub.UserID()

	r.mu.Lock()
	defer r.mu.Unlock()

	if registered, ok := r.conns[userID]; !ok || registered != sub {
		return
	}
	delete(r.conns, userID)
	delete(r.dashboard, userID)
}

// Get returns the registered connection for a user.
func (r *Registry) Get(userID string) (Subscriber, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sub, ok := r.conns[userID]
	return sub, ok
}

// JoinDashboard adds a registered connection to the dashboard room. The role
// gate belongs to the caller; the registry only tracks membership.
func (r *Registry) JoinDashboard(userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.conns[userID]
	if !ok {
		return ErrNotRegistered
	}
	r.dashboard[userID] = sub
	return nil
}

// LeaveDashboard removes a user from the dashboard room. Idempotent.
func (r *Registry) LeaveDashboard(userID string) {
	r.mu.Lock()
	delete(r.dashboard, userID)
	r.mu.Unlock()
}

// InDashboard reports dashboard-room membership.
func (r *Registry) InDashboard(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.dashboard[userID]
	return ok
}

// DashboardMembers snapshots the current room membership.
func (r *Registry) DashboardMembers() []Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := make([]Subscriber, 0, len(r.dashboard))
	for _, sub := range r.dashboard {
		members = append(members, sub)
	}
	return members
}

// Counts returns connection totals for logging and the health endpoint.
func (r *Registry) Counts() (connections, dashboardMembers int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns), len(r.dashboard)
}
