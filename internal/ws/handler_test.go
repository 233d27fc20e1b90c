package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"activityhub/internal/auth"
	"activityhub/internal/hub"
	"activityhub/pkg/types"
)

const testSecret = "ws-test-secret"

type wsFixture struct {
	server   *httptest.Server
	registry *hub.Registry
	hub      *hub.Hub
	store    *testStore
}

// testStore keeps the Querier surface in memory so handler tests do not
// depend on a database file.
type testStore struct {
	activities []types.Activity
	stats      types.StatsSnapshot
}

func (s *testStore) ListRecent(_ context.Context, limit int) ([]types.Activity, error) {
	return capSlice(s.activities, limit), nil
}

func (s *testStore) ListFiltered(_ context.Context, f types.FilterRequest, limit int) ([]types.Activity, error) {
	var out []types.Activity
	for _, a := range s.activities {
		if f.Type == "" || a.Type == f.Type {
			out = append(out, a)
		}
	}
	return capSlice(out, limit), nil
}

func (s *testStore) ListByActor(_ context.Context, actorID string, limit int) ([]types.Activity, error) {
	var out []types.Activity
	for _, a := range s.activities {
		if a.Actor.ID == actorID {
			out = append(out, a)
		}
	}
	return capSlice(out, limit), nil
}

func (s *testStore) Stats(_ context.Context, timeframe string) (types.StatsSnapshot, error) {
	snap := s.stats
	snap.Timeframe = timeframe
	return snap, nil
}

func capSlice(in []types.Activity, limit int) []types.Activity {
	if len(in) > limit {
		in = in[:limit]
	}
	out := make([]types.Activity, len(in))
	copy(out, in)
	return out
}

func newWSFixture(t *testing.T, st *testStore) *wsFixture {
	t.Helper()
	if st == nil {
		st = &testStore{}
	}

	registry := hub.NewRegistry()
	h := hub.New(registry, &nopRecorder{}, zerolog.Nop())
	require.NoError(t, h.Start(context.Background()))

	handler := NewHandler(registry, st, auth.NewHMACVerifier(testSecret), Config{}, zerolog.Nop())
	server := httptest.NewServer(handler)

	t.Cleanup(func() {
		server.Close()
		_ = h.Stop()
	})
	return &wsFixture{server: server, registry: registry, hub: h, store: st}
}

type nopRecorder struct{}

func (nopRecorder) SaveActivity(context.Context, *types.Activity) error { return nil }

func (f *wsFixture) dial(t *testing.T, id auth.Identity) *websocket.Conn {
	t.Helper()
	token, err := auth.Sign(testSecret, id, time.Hour)
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func sendEvent(t *testing.T, conn *websocket.Conn, event string, payload any) {
	t.Helper()
	env, err := types.NewEnvelope(event, payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(env))
}

func readEvent(t *testing.T, conn *websocket.Conn) *types.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env types.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return &env
}

func admin(id string) auth.Identity {
	return auth.Identity{UserID: id, Name: "Admin", Role: types.RoleAdmin}
}

func customer(id string) auth.Identity {
	return auth.Identity{UserID: id, Name: "Customer", Role: types.RoleCustomer}
}

func TestHandler_RejectsBadToken(t *testing.T) {
	f := newWSFixture(t, nil)

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "?token=garbage"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandler_PingPong(t *testing.T) {
	f := newWSFixture(t, nil)
	conn := f.dial(t, customer("u1"))

	sendEvent(t, conn, types.EventPing, nil)
	env := readEvent(t, conn)
	assert.Equal(t, types.EventPong, env.Event)
}

func TestHandler_UnknownEvent(t *testing.T) {
	f := newWSFixture(t, nil)
	conn := f.dial(t, customer("u1"))

	sendEvent(t, conn, "make_coffee", nil)
	env := readEvent(t, conn)
	require.Equal(t, types.EventError, env.Event)

	var payload types.ErrorPayload
	require.NoError(t, env.Decode(&payload))
	assert.Contains(t, payload.Message, "make_coffee")
}

func TestHandler_DashboardRequiresAdmin(t *testing.T) {
	f := newWSFixture(t, nil)
	conn := f.dial(t, customer("u1"))

	sendEvent(t, conn, types.EventJoinDashboard, nil)
	env := readEvent(t, conn)
	assert.Equal(t, types.EventDashboardError, env.Event)
	assert.False(t, f.registry.InDashboard("u1"))
}

func TestHandler_DashboardJoinLeave(t *testing.T) {
	f := newWSFixture(t, nil)
	conn := f.dial(t, admin("admin-1"))

	sendEvent(t, conn, types.EventJoinDashboard, nil)
	env := readEvent(t, conn)
	require.Equal(t, types.EventDashboardJoined, env.Event)
	assert.True(t, f.registry.InDashboard("admin-1"))

	sendEvent(t, conn, types.EventLeaveDashboard, nil)
	env = readEvent(t, conn)
	require.Equal(t, types.EventDashboardLeft, env.Event)
	assert.False(t, f.registry.InDashboard("admin-1"))
}

func TestHandler_InitialActivitiesGatedOnMembership(t *testing.T) {
	st := &testStore{activities: []types.Activity{
		{ID: "a1", Type: types.TypeOrder, Actor: types.Actor{ID: "u1"}},
	}}
	f := newWSFixture(t, st)
	conn := f.dial(t, admin("admin-1"))

	sendEvent(t, conn, types.EventRequestInitialActivities, nil)
	env := readEvent(t, conn)
	assert.Equal(t, types.EventDashboardError, env.Event)

	sendEvent(t, conn, types.EventJoinDashboard, nil)
	require.Equal(t, types.EventDashboardJoined, readEvent(t, conn).Event)

	sendEvent(t, conn, types.EventRequestInitialActivities, nil)
	env = readEvent(t, conn)
	require.Equal(t, types.EventInitialActivities, env.Event)

	var activities []types.Activity
	require.NoError(t, env.Decode(&activities))
	require.Len(t, activities, 1)
	assert.Equal(t, "a1", activities[0].ID)
}

func TestHandler_FilterActivities(t *testing.T) {
	st := &testStore{activities: []types.Activity{
		{ID: "a1", Type: types.TypeOrder, Actor: types.Actor{ID: "u1"}},
		{ID: "a2", Type: types.TypePayment, Actor: types.Actor{ID: "u1"}},
	}}
	f := newWSFixture(t, st)
	conn := f.dial(t, customer("u1"))

	sendEvent(t, conn, types.EventFilterActivities, types.FilterRequest{Type: types.TypePayment})
	env := readEvent(t, conn)
	require.Equal(t, types.EventFilteredActivities, env.Event)

	var activities []types.Activity
	require.NoError(t, env.Decode(&activities))
	require.Len(t, activities, 1)
	assert.Equal(t, "a2", activities[0].ID)
}

func TestHandler_FilterRejectsBadTimeframe(t *testing.T) {
	f := newWSFixture(t, nil)
	conn := f.dial(t, customer("u1"))

	sendEvent(t, conn, types.EventFilterActivities, types.FilterRequest{Timeframe: "1000y"})
	env := readEvent(t, conn)
	assert.Equal(t, types.EventActivityError, env.Event)
}

func TestHandler_StatsEvent(t *testing.T) {
	st := &testStore{stats: types.StatsSnapshot{
		TotalActivities: 7,
		TypeStats:       []types.TypeCount{{Type: types.TypeOrder, Count: 7}},
		DailyStats:      []types.DayCount{},
	}}
	f := newWSFixture(t, st)
	conn := f.dial(t, customer("u1"))

	sendEvent(t, conn, types.EventRequestActivityStats, types.StatsRequest{Timeframe: types.Timeframe24h})
	env := readEvent(t, conn)
	require.Equal(t, types.EventActivityStats, env.Event)

	var update types.StatsUpdate
	require.NoError(t, env.Decode(&update))
	require.NotNil(t, update.Total)
	assert.Equal(t, int64(7), *update.Total)
	assert.Equal(t, types.Timeframe24h, update.Timeframe)
}

func TestHandler_MyActivities(t *testing.T) {
	st := &testStore{activities: []types.Activity{
		{ID: "a1", Type: types.TypeOrder, Actor: types.Actor{ID: "u1"}},
		{ID: "a2", Type: types.TypeOrder, Actor: types.Actor{ID: "u2"}},
	}}
	f := newWSFixture(t, st)
	conn := f.dial(t, customer("u2"))

	sendEvent(t, conn, types.EventGetMyActivities, nil)
	env := readEvent(t, conn)
	require.Equal(t, types.EventMyActivities, env.Event)

	var activities []types.Activity
	require.NoError(t, env.Decode(&activities))
	require.Len(t, activities, 1)
	assert.Equal(t, "a2", activities[0].ID)
}

func TestHandler_HubFanOutReachesDashboard(t *testing.T) {
	f := newWSFixture(t, nil)
	conn := f.dial(t, admin("admin-1"))

	sendEvent(t, conn, types.EventJoinDashboard, nil)
	require.Equal(t, types.EventDashboardJoined, readEvent(t, conn).Event)

	require.NoError(t, f.hub.Publish(&types.Activity{
		Type:        types.TypeOrder,
		Description: "order placed",
		Actor:       types.Actor{ID: "u9", Role: types.RoleCustomer},
	}))

	env := readEvent(t, conn)
	require.Equal(t, types.EventNewActivity, env.Event)

	var got types.Activity
	require.NoError(t, env.Decode(&got))
	assert.Equal(t, "order placed", got.Description)
	assert.NotEmpty(t, got.ID)
}

func TestHandler_SecondLoginSupersedesFirst(t *testing.T) {
	f := newWSFixture(t, nil)
	first := f.dial(t, customer("u1"))

	gotForced := make(chan bool, 1)
	go func() {
		for {
			_ = first.SetReadDeadline(time.Now().Add(2 * time.Second))
			if _, _, err := first.ReadMessage(); err != nil {
				gotForced <- websocket.IsCloseError(err, CloseForced)
				return
			}
		}
	}()

	second := f.dial(t, customer("u1"))
	select {
	case forced := <-gotForced:
		assert.True(t, forced, "superseded socket should receive the forced close code")
	case <-time.After(2 * time.Second):
		t.Fatal("first connection never dropped")
	}

	// The replacement stays registered and functional.
	sendEvent(t, second, types.EventPing, nil)
	assert.Equal(t, types.EventPong, readEvent(t, second).Event)
}

func TestHandler_DisconnectUnregisters(t *testing.T) {
	f := newWSFixture(t, nil)
	conn := f.dial(t, admin("admin-1"))

	sendEvent(t, conn, types.EventJoinDashboard, nil)
	require.Equal(t, types.EventDashboardJoined, readEvent(t, conn).Event)
	require.NoError(t, conn.Close())

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := f.registry.Get("admin-1"); !ok {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("connection never unregistered")
}
