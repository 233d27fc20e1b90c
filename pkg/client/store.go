package client

import (
	"sync"

	"activityhub/pkg/types"
)

// Feed bounds. The realtime feed keeps the 100 most recent records, the
// dashboard list the 50 most recent.
const (
	FeedLimit          = 100
	DashboardFeedLimit = 50
)

// Sink receives state-change notifications from the store. Methods are
// invoked synchronously from the client's event goroutine and must not block.
type Sink interface {
	OnActivity(types.Activity)
	OnStatsUpdate(types.StatsSnapshot)
	OnConnectionChange(connected bool)
}

// NopSink discards all notifications.
type NopSink struct{}

func (NopSink) OnActivity(types.Activity)           {}
func (NopSink) OnStatsUpdate(types.StatsSnapshot)   {}
func (NopSink) OnConnectionChange(bool)             {}

// Store holds the client-side activity state: the realtime feed, the
// optional dashboard list, the stats snapshot and the connection flag.
// Feed contents survive reconnects; only membership and request guards reset.
type Store struct {
	mu           sync.RWMutex
	feed         []types.Activity
	dashboard    []types.Activity
	dashboardSet bool
	stats        types.StatsSnapshot
	connected    bool
	sink         Sink
}

// NewStore creates a store. A nil sink is replaced with NopSink.
func NewStore(sink Sink) *Store {
	if sink == nil {
		sink = NopSink{}
	}
	return &Store{sink: sink}
}

// Prepend inserts a record at the head of the realtime feed, truncating at
// FeedLimit. If the dashboard list has been populated the record is prepended
// there too, truncating at DashboardFeedLimit.
func (s *Store) Prepend(a types.Activity) {
	s.mu.Lock()
	s.feed = prepend(s.feed, a, FeedLimit)
	if s.dashboardSet {
		s.dashboard = prepend(s.dashboard, a, DashboardFeedLimit)
	}
	s.mu.Unlock()
	s.sink.OnActivity(a)
}

// ReplaceFeed swaps the realtime feed wholesale, as on initial, filtered and
// my-activities responses.
func (s *Store) ReplaceFeed(list []types.Activity) {
	s.mu.Lock()
	s.feed = append([]types.Activity(nil), list...)
	if len(s.feed) > FeedLimit {
		s.feed = s.feed[:FeedLimit]
	}
	s.mu.Unlock()
}

// SetDashboard populates the dashboard list. Once populated, new realtime
// records are mirrored into it.
func (s *Store) SetDashboard(list []types.Activity) {
	s.mu.Lock()
	s.dashboard = append([]types.Activity(nil), list...)
	if len(s.dashboard) > DashboardFeedLimit {
		s.dashboard = s.dashboard[:DashboardFeedLimit]
	}
	s.dashboardSet = true
	s.mu.Unlock()
}

// ClearDashboard drops the dashboard list and stops mirroring into it.
func (s *Store) ClearDashboard() {
	s.mu.Lock()
	s.dashboard = nil
	s.dashboardSet = false
	s.mu.Unlock()
}

// MergeStats applies a partial stats update to the snapshot.
func (s *Store) MergeStats(u types.StatsUpdate) {
	s.mu.Lock()
	s.stats.Apply(u)
	snap := s.stats
	s.mu.Unlock()
	s.sink.OnStatsUpdate(snap)
}

// SetConnected publishes the connection flag. Notification fires only on an
// actual change, which keeps Disconnect idempotent for sink consumers.
func (s *Store) SetConnected(connected bool) {
	s.mu.Lock()
	if s.connected == connected {
		s.mu.Unlock()
		return
	}
	s.connected = connected
	s.mu.Unlock()
	s.sink.OnConnectionChange(connected)
}

// Feed returns a copy of the realtime feed, most recent first.
func (s *Store) Feed() []types.Activity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]types.Activity(nil), s.feed...)
}

// Dashboard returns a copy of the dashboard list, most recent first.
func (s *Store) Dashboard() []types.Activity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]types.Activity(nil), s.dashboard...)
}

// Stats returns the current stats snapshot.
func (s *Store) Stats() types.StatsSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// Connected reports the published connection flag.
func (s *Store) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

func prepend(list []types.Activity, a types.Activity, limit int) []types.Activity {
	list = append([]types.Activity{a}, list...)
	if len(list) > limit {
		list = list[:limit]
	}
	return list
}
