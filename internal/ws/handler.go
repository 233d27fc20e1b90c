package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"activityhub/internal/auth"
	"activityhub/internal/hub"
	"activityhub/pkg/types"
)

const (
	// CloseForced tells well-behaved clients not to reconnect.
	CloseForced = 4000

	defaultPingInterval = 30 * time.Second
	defaultReadTimeout  = 60 * time.Second
	defaultRateLimit    = 60

	initialFeedLimit  = 50
	filteredFeedLimit = 100
	myFeedLimit       = 50

	rateLimitWindow = time.Minute
)

// Config tunes the connection lifecycle. Zero values fall back to defaults.
type Config struct {
	PingInterval time.Duration
	ReadTimeout  time.Duration
	RateLimit    int
}

func (c Config) withDefaults() Config {
	if c.PingInterval <= 0 {
		c.PingInterval = defaultPingInterval
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = defaultReadTimeout
	}
	if c.RateLimit <= 0 {
		c.RateLimit = defaultRateLimit
	}
	return c
}

// Querier is the read side of the activity store the handler serves
// request events from.
type Querier interface {
	ListRecent(ctx context.Context, limit int) ([]types.Activity, error)
	ListFiltered(ctx context.Context, f types.FilterRequest, limit int) ([]types.Activity, error)
	ListByActor(ctx context.Context, actorID string, limit int) ([]types.Activity, error)
	Stats(ctx context.Context, timeframe string) (types.StatsSnapshot, error)
}

// Handler upgrades authenticated HTTP requests to websocket connections and
// serves the realtime event vocabulary over them.
type Handler struct {
	registry *hub.Registry
	querier  Querier
	verifier auth.Verifier
	limiter  *RateLimiter
	upgrader websocket.Upgrader
	cfg      Config
	log      zerolog.Logger
}

func NewHandler(registry *hub.Registry, querier Querier, verifier auth.Verifier, cfg Config, log zerolog.Logger) *Handler {
	cfg = cfg.withDefaults()
	return &Handler{
		registry: registry,
		querier:  querier,
		verifier: verifier,
		cfg:      cfg,
		limiter:  NewRateLimiter(cfg.RateLimit, rateLimitWindow),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log: log.With().Str("component", "ws").Logger(),
	}
}

// ServeHTTP authenticates the token query parameter, upgrades the request
// and runs the connection's read loop until it drops.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	identity, err := h.verifier.Verify(token)
	if err != nil {
		h.log.Debug().Err(err).Msg("rejected upgrade")
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	sock, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("upgrade failed")
		return
	}

	// A second login supersedes the old session. The old socket gets the
	// forced-disconnect code so a well-behaved client stops reconnecting.
	if old, ok := h.registry.Get(identity.UserID); ok {
		if oc, ok := old.(*Connection); ok {
			oc.Kick(CloseForced, "session superseded")
		}
	}

	conn := NewConnection(identity, sock, h.log)
	if err := h.registry.Register(conn); err != nil {
		h.log.Error().Err(err).Msg("register failed")
		_ = conn.Close()
		return
	}

	h.log.Info().Str("user", identity.UserID).Str("role", identity.Role).Msg("client connected")
	h.serve(r.Context(), conn)
}

func (h *Handler) serve(ctx context.Context, conn *Connection) {
	defer func() {
		h.registry.Unregister(conn)
		h.limiter.Forget(conn.UserID())
		_ = conn.Close()
		h.log.Info().Str("user", conn.UserID()).Msg("client disconnected")
	}()

	_ = conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	})

	stopPings := make(chan struct{})
	defer close(stopPings)
	go h.pingLoop(conn, stopPings)

	for {
		env, err := conn.ReadEnvelope()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Debug().Err(err).Str("user", conn.UserID()).Msg("read failed")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))

		if !h.limiter.Allow(conn.UserID()) {
			h.sendError(conn, types.EventError, "rate limit exceeded, slow down")
			continue
		}
		h.handleEvent(ctx, conn, env)
	}
}

func (h *Handler) pingLoop(conn *Connection, stop <-chan struct{}) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := conn.SendControl(websocket.PingMessage, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		case <-stop:
			return
		}
	}
}

func (h *Handler) handleEvent(ctx context.Context, conn *Connection, env *types.Envelope) {
	switch env.Event {
	case types.EventJoinDashboard:
		h.handleJoinDashboard(conn)
	case types.EventLeaveDashboard:
		h.registry.LeaveDashboard(conn.UserID())
		h.send(conn, types.EventDashboardLeft, nil)
	case types.EventRequestInitialActivities:
		h.handleInitial(ctx, conn)
	case types.EventFilterActivities:
		h.handleFilter(ctx, conn, env)
	case types.EventRequestActivityStats:
		h.handleStats(ctx, conn, env)
	case types.EventGetMyActivities:
		h.handleMyActivities(ctx, conn)
	case types.EventPing:
		h.send(conn, types.EventPong, nil)
	default:
		h.sendError(conn, types.EventError, "unknown event: "+env.Event)
	}
}

func (h *Handler) handleJoinDashboard(conn *Connection) {
	if !conn.Identity().IsAdmin() {
		h.sendError(conn, types.EventDashboardError, "dashboard requires admin role")
		return
	}
	if err := h.registry.JoinDashboard(conn.UserID()); err != nil {
		h.sendError(conn, types.EventDashboardError, "join failed")
		return
	}
	h.send(conn, types.EventDashboardJoined, nil)
}

func (h *Handler) handleInitial(ctx context.Context, conn *Connection) {
	if !h.registry.InDashboard(conn.UserID()) {
		h.sendError(conn, types.EventDashboardError, "join the dashboard first")
		return
	}
	activities, err := h.querier.ListRecent(ctx, initialFeedLimit)
	if err != nil {
		h.log.Error().Err(err).Msg("initial query failed")
		h.sendError(conn, types.EventActivityError, "could not load activities")
		return
	}
	h.send(conn, types.EventInitialActivities, activities)
}

func (h *Handler) handleFilter(ctx context.Context, conn *Connection, env *types.Envelope) {
	var req types.FilterRequest
	if err := env.Decode(&req); err != nil {
		h.sendError(conn, types.EventActivityError, "malformed filter request")
		return
	}
	if err := req.Validate(); err != nil {
		h.sendError(conn, types.EventActivityError, err.Error())
		return
	}
	activities, err := h.querier.ListFiltered(ctx, req, filteredFeedLimit)
	if err != nil {
		h.log.Error().Err(err).Msg("filter query failed")
		h.sendError(conn, types.EventActivityError, "could not load activities")
		return
	}
	h.send(conn, types.EventFilteredActivities, activities)
}

func (h *Handler) handleStats(ctx context.Context, conn *Connection, env *types.Envelope) {
	var req types.StatsRequest
	if err := env.Decode(&req); err != nil && !errors.Is(err, types.ErrEmptyPayload) {
		h.sendError(conn, types.EventActivityError, "malformed stats request")
		return
	}
	if !types.IsValidTimeframe(req.Timeframe) {
		h.sendError(conn, types.EventActivityError, types.ErrInvalidTimeframe.Error())
		return
	}
	snap, err := h.querier.Stats(ctx, req.Timeframe)
	if err != nil {
		h.log.Error().Err(err).Msg("stats query failed")
		h.sendError(conn, types.EventActivityError, "could not load stats")
		return
	}
	total := snap.TotalActivities
	h.send(conn, types.EventActivityStats, types.StatsUpdate{
		Total:      &total,
		TypeStats:  snap.TypeStats,
		DailyStats: snap.DailyStats,
		Timeframe:  snap.Timeframe,
	})
}

func (h *Handler) handleMyActivities(ctx context.Context, conn *Connection) {
	activities, err := h.querier.ListByActor(ctx, conn.UserID(), myFeedLimit)
	if err != nil {
		h.log.Error().Err(err).Msg("actor query failed")
		h.sendError(conn, types.EventActivityError, "could not load activities")
		return
	}
	h.send(conn, types.EventMyActivities, activities)
}

func (h *Handler) send(conn *Connection, event string, payload any) {
	env, err := types.NewEnvelope(event, payload)
	if err != nil {
		h.log.Error().Err(err).Str("event", event).Msg("encode failed")
		return
	}
	if err := conn.Send(env); err != nil {
		h.log.Debug().Err(err).Str("event", event).Str("user", conn.UserID()).Msg("send failed")
	}
}

func (h *Handler) sendError(conn *Connection, event, msg string) {
	h.send(conn, event, types.ErrorPayload{Message: msg})
}
