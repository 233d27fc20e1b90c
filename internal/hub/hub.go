// Package hub persists published activities and fans them out to dashboard
// subscribers and to the originating actor's own connection.
package hub

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"activityhub/pkg/types"
)

const activityBuffer = 1000

// Recorder persists activity records before fan-out.
type Recorder interface {
	SaveActivity(ctx context.Context, a *types.Activity) error
}

// Hub owns the activity pipeline: Publish normalizes and queues a record,
// the run loop persists it and pushes new_activity to the dashboard room and
// the record's actor.
type Hub struct {
	registry *Registry
	recorder Recorder
	log      zerolog.Logger

	activityCh chan queued
	shutdownCh chan struct{}

	mu      sync.RWMutex
	running bool
}

func New(registry *Registry, recorder Recorder, log zerolog.Logger) *Hub {
	return &Hub{
		registry:   registry,
		recorder:   recorder,
		log:        log.With().Str("component", "hub").Logger(),
		activityCh: make(chan queued, activityBuffer),
		shutdownCh: make(chan struct{}),
	}
}

// Start launches the processing loop.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return ErrAlreadyRunning
	}
	h.running = true
	h.mu.Unlock()

	h.log.Info().Msg("starting activity hub")
	go h.run(ctx)
	return nil
}

// Stop shuts the processing loop down. Queued activities are dropped.
func (h *Hub) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running {
		return ErrNotRunning
	}
	h.running = false

	select {
	case <-h.shutdownCh:
	default:
		close(h.shutdownCh)
	}
	return nil
}

// Publish validates and normalizes a record, then queues it without
// blocking. Missing id, timestamp and status are filled in here so callers
// see the final record.
func (h *Hub) Publish(a *types.Activity) error {
	h.mu.RLock()
	if !h.running {
		h.mu.RUnlock()
		return ErrNotRunning
	}
	h.mu.RUnlock()

	if err := a.Validate(); err != nil {
		return err
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if a.Status == "" {
		a.Status = types.StatusSuccess
	}

	return h.enqueue(queued{event: types.EventNewActivity, activity: a, persist: true})
}

// PublishUpdate fans an already-persisted status change out as an
// activity_update event. The caller owns persistence.
func (h *Hub) PublishUpdate(a *types.Activity) error {
	h.mu.RLock()
	if !h.running {
		h.mu.RUnlock()
		return ErrNotRunning
	}
	h.mu.RUnlock()

	if err := a.Validate(); err != nil {
		return err
	}
	return h.enqueue(queued{event: types.EventActivityUpdate, activity: a})
}

// queued pairs a record with the event name it fans out under.
type queued struct {
	event    string
	activity *types.Activity
	persist  bool
}

func (h *Hub) enqueue(q queued) error {
	select {
	case h.activityCh <- q:
		return nil
	default:
		return ErrQueueFull
	}
}

func (h *Hub) run(ctx context.Context) {
	defer h.log.Info().Msg("activity hub stopped")
	for {
		select {
		case q := <-h.activityCh:
			h.handleActivity(ctx, q)
		case <-h.shutdownCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// handleActivity persists the record when required and fans it out. A
// persistence failure drops the record rather than crashing the loop;
// fan-out errors are logged per recipient.
func (h *Hub) handleActivity(ctx context.Context, q queued) {
	a := q.activity
	if q.persist {
		if err := h.recorder.SaveActivity(ctx, a); err != nil {
			h.log.Error().Err(err).Str("activity", a.ID).Msg("persist failed, dropping activity")
			return
		}
	}

	env, err := types.NewEnvelope(q.event, a)
	if err != nil {
		h.log.Error().Err(err).Str("activity", a.ID).Msg("encode failed")
		return
	}

	delivered := map[string]bool{}
	for _, member := range h.registry.DashboardMembers() {
		if err := member.Send(env); err != nil {
			h.log.Warn().Err(err).Str("user", member.UserID()).Msg("dashboard push failed")
			continue
		}
		delivered[member.UserID()] = true
	}

	// The actor sees their own activity even outside the dashboard room.
	if sub, ok := h.registry.Get(a.Actor.ID); ok && !delivered[a.Actor.ID] {
		if err := sub.Send(env); err != nil {
			h.log.Warn().Err(err).Str("user", a.Actor.ID).Msg("actor push failed")
		}
	}

	h.log.Debug().Str("activity", a.ID).Str("type", a.Type).Int("dashboard", len(delivered)).Msg("activity routed")
}
