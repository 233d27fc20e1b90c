// Package api exposes the HTTP surface: activity ingest, queries, stats and
// health. Browsers consume the same data over the websocket; this surface is
// for backend services and operators.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"activityhub/internal/auth"
	"activityhub/internal/hub"
	"activityhub/internal/store"
	"activityhub/pkg/types"
)

const (
	defaultListLimit = 50
	maxListLimit     = 100
)

// Publisher is the hub surface the API pushes into.
type Publisher interface {
	Publish(a *types.Activity) error
	PublishUpdate(a *types.Activity) error
}

// Reader is the store surface the API queries.
type Reader interface {
	ListFiltered(ctx context.Context, f types.FilterRequest, limit int) ([]types.Activity, error)
	GetActivity(ctx context.Context, id string) (*types.Activity, error)
	UpdateStatus(ctx context.Context, id, status string, updatedAt time.Time) error
	Stats(ctx context.Context, timeframe string) (types.StatsSnapshot, error)
}

// Counter reports live connection totals for the health endpoint.
type Counter interface {
	Counts() (connections, dashboardMembers int)
}

type Server struct {
	publisher Publisher
	reader    Reader
	counter   Counter
	verifier  auth.Verifier
	log       zerolog.Logger
}

func NewServer(publisher Publisher, reader Reader, counter Counter, verifier auth.Verifier, log zerolog.Logger) *Server {
	return &Server{
		publisher: publisher,
		reader:    reader,
		counter:   counter,
		verifier:  verifier,
		log:       log.With().Str("component", "api").Logger(),
	}
}

// Routes mounts the API onto a chi router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.authenticate)
		r.Post("/activities", s.handleCreateActivity)
		r.Get("/activities", s.handleListActivities)
		r.Get("/activities/{id}", s.handleGetActivity)
		r.With(s.requireAdmin).Patch("/activities/{id}/status", s.handleUpdateStatus)
		r.With(s.requireAdmin).Get("/stats", s.handleStats)
	})
	return r
}

type ctxKey int

const identityKey ctxKey = 0

func identityFrom(ctx context.Context) (auth.Identity, bool) {
	id, ok := ctx.Value(identityKey).(auth.Identity)
	return id, ok
}

// authenticate verifies the Bearer token and stores the identity on the
// request context.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			s.respondError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		identity, err := s.verifier.Verify(token)
		if err != nil {
			s.respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		ctx := context.WithValue(r.Context(), identityKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := identityFrom(r.Context())
		if !ok || !identity.IsAdmin() {
			s.respondError(w, http.StatusForbidden, "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	conns, members := s.counter.Counts()
	s.respond(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"connections":      conns,
		"dashboardMembers": members,
	})
}

// handleCreateActivity validates and publishes a record. The hub fills in id,
// timestamp and default status, so the response carries the final record.
func (s *Server) handleCreateActivity(w http.ResponseWriter, r *http.Request) {
	var a types.Activity
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		s.respondError(w, http.StatusBadRequest, "malformed activity")
		return
	}

	// Services may submit on behalf of any actor; everyone else only as
	// themselves.
	identity, _ := identityFrom(r.Context())
	if identity.Role != types.RoleService && !identity.IsAdmin() {
		a.Actor = types.Actor{ID: identity.UserID, Name: identity.Name, Role: identity.Role}
	}

	if err := s.publisher.Publish(&a); err != nil {
		switch {
		case errors.Is(err, hub.ErrQueueFull):
			s.respondError(w, http.StatusServiceUnavailable, "activity queue full")
		case errors.Is(err, hub.ErrNotRunning):
			s.respondError(w, http.StatusServiceUnavailable, "hub not running")
		default:
			s.respondError(w, http.StatusBadRequest, err.Error())
		}
		return
	}
	s.respond(w, http.StatusAccepted, a)
}

func (s *Server) handleListActivities(w http.ResponseWriter, r *http.Request) {
	f := types.FilterRequest{
		Type:      r.URL.Query().Get("type"),
		Timeframe: r.URL.Query().Get("timeframe"),
	}
	if err := f.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxListLimit {
			s.respondError(w, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		limit = n
	}

	activities, err := s.reader.ListFiltered(r.Context(), f, limit)
	if err != nil {
		s.log.Error().Err(err).Msg("list query failed")
		s.respondError(w, http.StatusInternalServerError, "query failed")
		return
	}
	s.respond(w, http.StatusOK, activities)
}

func (s *Server) handleGetActivity(w http.ResponseWriter, r *http.Request) {
	a, err := s.reader.GetActivity(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "activity not found")
			return
		}
		s.log.Error().Err(err).Msg("get query failed")
		s.respondError(w, http.StatusInternalServerError, "query failed")
		return
	}
	s.respond(w, http.StatusOK, a)
}

// handleUpdateStatus persists a status transition and broadcasts the updated
// record to the dashboard room.
func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.respondError(w, http.StatusBadRequest, "malformed request")
		return
	}

	id := chi.URLParam(r, "id")
	now := time.Now().UTC()
	if err := s.reader.UpdateStatus(r.Context(), id, body.Status, now); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			s.respondError(w, http.StatusNotFound, "activity not found")
		case errors.Is(err, types.ErrInvalidStatus):
			s.respondError(w, http.StatusBadRequest, err.Error())
		default:
			s.log.Error().Err(err).Str("activity", id).Msg("status update failed")
			s.respondError(w, http.StatusInternalServerError, "update failed")
		}
		return
	}

	a, err := s.reader.GetActivity(r.Context(), id)
	if err != nil {
		s.log.Error().Err(err).Str("activity", id).Msg("reload after update failed")
		s.respondError(w, http.StatusInternalServerError, "update failed")
		return
	}
	if err := s.publisher.PublishUpdate(a); err != nil {
		s.log.Warn().Err(err).Str("activity", id).Msg("update broadcast failed")
	}
	s.respond(w, http.StatusOK, a)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	timeframe := r.URL.Query().Get("timeframe")
	if !types.IsValidTimeframe(timeframe) {
		s.respondError(w, http.StatusBadRequest, types.ErrInvalidTimeframe.Error())
		return
	}
	snap, err := s.reader.Stats(r.Context(), timeframe)
	if err != nil {
		s.log.Error().Err(err).Msg("stats query failed")
		s.respondError(w, http.StatusInternalServerError, "query failed")
		return
	}
	s.respond(w, http.StatusOK, snap)
}

func (s *Server) respond(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error().Err(err).Msg("encode response failed")
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, msg string) {
	s.respond(w, status, map[string]string{"error": msg})
}
