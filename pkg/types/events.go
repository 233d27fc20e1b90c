package types

import (
	"encoding/json"
	"fmt"
)

// Client-to-server event names.
const (
	EventJoinDashboard            = "join_dashboard"
	EventLeaveDashboard           = "leave_dashboard"
	EventFilterActivities         = "filter_activities"
	EventRequestActivityStats     = "request_activity_stats"
	EventGetMyActivities          = "get_my_activities"
	EventPing                     = "ping"
	EventRequestInitialActivities = "request_initial_activities"
)

// Server-to-client event names.
const (
	EventNewActivity        = "new_activity"
	EventActivityUpdate     = "activity_update"
	EventInitialActivities  = "initial_activities"
	EventFilteredActivities = "filtered_activities"
	EventMyActivities       = "my_activities"
	EventActivityStats      = "activity_stats"
	EventDashboardJoined    = "dashboard_joined"
	EventDashboardLeft      = "dashboard_left"
	EventDashboardError     = "dashboard_error"
	EventActivityError      = "activity_error"
	EventError              = "error"
	EventPong               = "pong"
)

// Envelope is the wire frame: every message in either direction is a JSON
// object carrying an event name and an event-specific payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope builds an envelope, marshaling the payload. A nil payload
// produces an envelope with no data field.
func NewEnvelope(event string, payload any) (*Envelope, error) {
	env := &Envelope{Event: event}
	if payload == nil {
		return env, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	env.Data = data
	return env, nil
}

// Decode unmarshals the envelope payload into v.
func (e *Envelope) Decode(v any) error {
	if len(e.Data) == 0 {
		return ErrEmptyPayload
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Event, err)
	}
	return nil
}

// FilterRequest narrows an activity query by type and/or timeframe.
// Both fields are optional.
type FilterRequest struct {
	Type      string `json:"type,omitempty"`
	Timeframe string `json:"timeframe,omitempty"`
}

// StatsRequest asks for aggregate counts over a timeframe.
type StatsRequest struct {
	Timeframe string `json:"timeframe,omitempty"`
}

// ErrorPayload carries the message of a dashboard_error, activity_error or
// error event.
type ErrorPayload struct {
	Message string `json:"message"`
}
