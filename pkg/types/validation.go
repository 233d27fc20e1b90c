package types

import (
	"regexp"
	"time"
)

var identifierRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// IsValidIdentifier reports whether s is usable as an actor or entity id.
func IsValidIdentifier(s string) bool {
	return len(s) >= 1 && len(s) <= 64 && identifierRegex.MatchString(s)
}

// IsValidStatus reports whether s is a recognized activity status.
func IsValidStatus(s string) bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusPending
}

// IsValidRole reports whether s is a recognized role.
func IsValidRole(s string) bool {
	return s == RoleAdmin || s == RoleCustomer || s == RoleService
}

// IsValidTimeframe reports whether s is an accepted timeframe value.
// The empty string is valid: requests omit it to get the default.
func IsValidTimeframe(s string) bool {
	switch s {
	case "", Timeframe24h, Timeframe7d, Timeframe30d, Timeframe90d:
		return true
	}
	return false
}

// TimeframeDuration maps a timeframe value to its duration. An empty
// timeframe defaults to seven days.
func TimeframeDuration(s string) (time.Duration, bool) {
	switch s {
	case Timeframe24h:
		return 24 * time.Hour, true
	case "", Timeframe7d:
		return 7 * 24 * time.Hour, true
	case Timeframe30d:
		return 30 * 24 * time.Hour, true
	case Timeframe90d:
		return 90 * 24 * time.Hour, true
	}
	return 0, false
}

// Validate ensures the activity meets all requirements. ID, CreatedAt and a
// defaulted status are filled in by the server at ingest, so they are not
// checked here.
func (a *Activity) Validate() error {
	if !IsValidIdentifier(a.Type) {
		return ErrInvalidActivityType
	}
	if len(a.Description) > 500 {
		return ErrDescriptionTooLong
	}
	if !IsValidIdentifier(a.Actor.ID) {
		return ErrInvalidActorID
	}
	if a.Actor.Role != "" && !IsValidRole(a.Actor.Role) {
		return ErrInvalidRole
	}
	if a.Status != "" && !IsValidStatus(a.Status) {
		return ErrInvalidStatus
	}
	return nil
}

// Validate checks the filter request fields.
func (f *FilterRequest) Validate() error {
	if f.Type != "" && !IsValidIdentifier(f.Type) {
		return ErrInvalidActivityType
	}
	if !IsValidTimeframe(f.Timeframe) {
		return ErrInvalidTimeframe
	}
	return nil
}
