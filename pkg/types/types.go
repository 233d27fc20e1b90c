package types

import (
	"time"
)

// Roles recognized by the service. Only admins may join the dashboard room.
const (
	RoleAdmin    = "admin"
	RoleCustomer = "customer"
	RoleService  = "service"
)

// Activity status values.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusPending = "pending"
)

// Common activity type tags. The type field is free-form; these cover the
// events the storefront emits today.
const (
	TypeOrder    = "order"
	TypePayment  = "payment"
	TypeUser     = "user"
	TypeProduct  = "product"
	TypeCategory = "category"
	TypeAuth     = "auth"
	TypeSystem   = "system"
)

// Timeframe values accepted by filter and stats requests.
const (
	Timeframe24h = "24h"
	Timeframe7d  = "7d"
	Timeframe30d = "30d"
	Timeframe90d = "90d"
)

// Actor identifies who triggered an activity.
type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// EntityRef points at the domain entity an activity concerns.
type EntityRef struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// Activity is an immutable record of a state change. Produced only by the
// server; clients prepend it to in-memory feeds and never mutate it.
type Activity struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Description string         `json:"description"`
	Actor       Actor          `json:"actor"`
	Status      string         `json:"status"`
	Amount      *float64       `json:"amount,omitempty"`
	Entity      *EntityRef     `json:"entity,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   *time.Time     `json:"updatedAt,omitempty"`
}

// TypeCount is an aggregate count for one activity type.
type TypeCount struct {
	Type  string `json:"type"`
	Count int64  `json:"count"`
}

// DayCount is an aggregate count for one calendar day (YYYY-MM-DD).
type DayCount struct {
	Day   string `json:"day"`
	Count int64  `json:"count"`
}

// StatsSnapshot holds aggregate activity counts for a timeframe.
type StatsSnapshot struct {
	TotalActivities int64       `json:"total"`
	TypeStats       []TypeCount `json:"stats"`
	DailyStats      []DayCount  `json:"dailyStats"`
	Timeframe       string      `json:"timeframe"`
}

// StatsUpdate is a partial stats payload. Fields left at their zero value
// (nil pointer, nil slice, empty timeframe) do not overwrite the snapshot.
type StatsUpdate struct {
	Total      *int64      `json:"total,omitempty"`
	TypeStats  []TypeCount `json:"stats,omitempty"`
	DailyStats []DayCount  `json:"dailyStats,omitempty"`
	Timeframe  string      `json:"timeframe,omitempty"`
}

// Apply merges a partial update into the snapshot. Provided fields overwrite,
// omitted fields are preserved.
func (s *StatsSnapshot) Apply(u StatsUpdate) {
	if u.Total != nil {
		s.TotalActivities = *u.Total
	}
	if u.TypeStats != nil {
		s.TypeStats = u.TypeStats
	}
	if u.DailyStats != nil {
		s.DailyStats = u.DailyStats
	}
	if u.Timeframe != "" {
		s.Timeframe = u.Timeframe
	}
}
