// Package store persists activity records in SQLite and serves the filtered
// queries and aggregates behind the realtime event vocabulary.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"activityhub/pkg/types"
)

var (
	ErrClosed       = errors.New("store is closed")
	ErrWriteTimeout = errors.New("write operation timed out")
	ErrNotFound     = errors.New("activity not found")
)

const (
	maxOpenConns = 10
	writeBuffer  = 100
	writeTimeout = 30 * time.Second
)

// Store wraps the SQLite database. Writes are funneled through a single
// goroutine; reads go straight to the pooled connections.
type Store struct {
	db      *sql.DB
	log     zerolog.Logger
	writeCh chan writeOp
	done    chan struct{}
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

type writeOp struct {
	run    func(*sql.DB) error
	result chan error
}

// Open opens (creating if needed) the database at path and applies the
// schema.
func Open(path string, log zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{
		db:      db,
		log:     log.With().Str("component", "store").Logger(),
		writeCh: make(chan writeOp, writeBuffer),
		done:    make(chan struct{}),
	}
	s.wg.Add(1)
	go s.writeLoop()
	return s, nil
}

// writeLoop executes all writes on one goroutine, retrying each failed write
// once. SQLite tolerates a single writer much better than contention.
func (s *Store) writeLoop() {
	defer s.wg.Done()
	for {
		select {
		case op := <-s.writeCh:
			err := op.run(s.db)
			if err != nil {
				s.log.Warn().Err(err).Msg("write failed, retrying once")
				err = op.run(s.db)
			}
			op.result <- err
		case <-s.done:
			return
		}
	}
}

func (s *Store) executeWrite(run func(*sql.DB) error) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrClosed
	}
	s.mu.RUnlock()

	result := make(chan error, 1)
	select {
	case s.writeCh <- writeOp{run: run, result: result}:
		return <-result
	case <-time.After(writeTimeout):
		return ErrWriteTimeout
	case <-s.done:
		return ErrClosed
	}
}

// SaveActivity persists a record. ID, CreatedAt and Status must already be
// normalized by the publisher.
func (s *Store) SaveActivity(ctx context.Context, a *types.Activity) error {
	var metadata sql.NullString
	if len(a.Metadata) > 0 {
		raw, err := json.Marshal(a.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		metadata = sql.NullString{String: string(raw), Valid: true}
	}

	var amount sql.NullFloat64
	if a.Amount != nil {
		amount = sql.NullFloat64{Float64: *a.Amount, Valid: true}
	}
	var entityID, entityType sql.NullString
	if a.Entity != nil {
		entityID = sql.NullString{String: a.Entity.ID, Valid: true}
		entityType = sql.NullString{String: a.Entity.Type, Valid: true}
	}
	var updatedAt sql.NullTime
	if a.UpdatedAt != nil {
		updatedAt = sql.NullTime{Time: *a.UpdatedAt, Valid: true}
	}

	return s.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO activities
				(id, type, description, actor_id, actor_name, actor_role,
				 status, amount, entity_id, entity_type, metadata, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.Type, a.Description, a.Actor.ID, a.Actor.Name, a.Actor.Role,
			a.Status, amount, entityID, entityType, metadata, a.CreatedAt, updatedAt)
		if err != nil {
			return fmt.Errorf("insert activity %s: %w", a.ID, err)
		}
		return nil
	})
}

// UpdateStatus transitions an existing record's status and stamps updated_at.
func (s *Store) UpdateStatus(ctx context.Context, id, status string, updatedAt time.Time) error {
	if !types.IsValidStatus(status) || status == "" {
		return types.ErrInvalidStatus
	}
	return s.executeWrite(func(db *sql.DB) error {
		res, err := db.ExecContext(ctx, `
			UPDATE activities SET status = ?, updated_at = ? WHERE id = ?`,
			status, updatedAt, id)
		if err != nil {
			return fmt.Errorf("update activity %s: %w", id, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// GetActivity fetches a single record by id.
func (s *Store) GetActivity(ctx context.Context, id string) (*types.Activity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+selectColumns+` FROM activities WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("get activity %s: %w", id, err)
	}
	activities, err := scanActivities(rows)
	if err != nil {
		return nil, err
	}
	if len(activities) == 0 {
		return nil, ErrNotFound
	}
	return &activities[0], nil
}

const selectColumns = `id, type, description, actor_id, actor_name, actor_role,
	status, amount, entity_id, entity_type, metadata, created_at, updated_at`

// ListRecent returns the most recent records, newest first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]types.Activity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+selectColumns+` FROM activities
		ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent: %w", err)
	}
	return scanActivities(rows)
}

// ListFiltered returns records narrowed by type and/or timeframe, newest
// first. An empty timeframe defaults to seven days.
func (s *Store) ListFiltered(ctx context.Context, f types.FilterRequest, limit int) ([]types.Activity, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	window, _ := types.TimeframeDuration(f.Timeframe)
	since := time.Now().Add(-window)

	query := `SELECT ` + selectColumns + ` FROM activities WHERE created_at >= ?`
	args := []any{since}
	if f.Type != "" {
		query += ` AND type = ?`
		args = append(args, f.Type)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list filtered: %w", err)
	}
	return scanActivities(rows)
}

// ListByActor returns records produced by one actor, newest first.
func (s *Store) ListByActor(ctx context.Context, actorID string, limit int) ([]types.Activity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+selectColumns+` FROM activities
		WHERE actor_id = ? ORDER BY created_at DESC LIMIT ?`, actorID, limit)
	if err != nil {
		return nil, fmt.Errorf("list by actor: %w", err)
	}
	return scanActivities(rows)
}

// Stats aggregates counts over the timeframe: grand total, per type and per
// calendar day.
func (s *Store) Stats(ctx context.Context, timeframe string) (types.StatsSnapshot, error) {
	window, ok := types.TimeframeDuration(timeframe)
	if !ok {
		return types.StatsSnapshot{}, types.ErrInvalidTimeframe
	}
	since := time.Now().Add(-window)
	if timeframe == "" {
		timeframe = types.Timeframe7d
	}
	snap := types.StatsSnapshot{
		Timeframe:  timeframe,
		TypeStats:  []types.TypeCount{},
		DailyStats: []types.DayCount{},
	}

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM activities WHERE created_at >= ?`, since,
	).Scan(&snap.TotalActivities)
	if err != nil {
		return types.StatsSnapshot{}, fmt.Errorf("count activities: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT type, COUNT(*) FROM activities
		WHERE created_at >= ? GROUP BY type ORDER BY COUNT(*) DESC, type`, since)
	if err != nil {
		return types.StatsSnapshot{}, fmt.Errorf("count by type: %w", err)
	}
	for rows.Next() {
		var tc types.TypeCount
		if err := rows.Scan(&tc.Type, &tc.Count); err != nil {
			rows.Close()
			return types.StatsSnapshot{}, fmt.Errorf("scan type count: %w", err)
		}
		snap.TypeStats = append(snap.TypeStats, tc)
	}
	if err := rows.Close(); err != nil {
		return types.StatsSnapshot{}, err
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT strftime('%Y-%m-%d', created_at), COUNT(*) FROM activities
		WHERE created_at >= ? GROUP BY 1 ORDER BY 1`, since)
	if err != nil {
		return types.StatsSnapshot{}, fmt.Errorf("count by day: %w", err)
	}
	for rows.Next() {
		var dc types.DayCount
		if err := rows.Scan(&dc.Day, &dc.Count); err != nil {
			rows.Close()
			return types.StatsSnapshot{}, fmt.Errorf("scan day count: %w", err)
		}
		snap.DailyStats = append(snap.DailyStats, dc)
	}
	if err := rows.Close(); err != nil {
		return types.StatsSnapshot{}, err
	}

	return snap, nil
}

// Close drains the writer and closes the database. Safe to call once.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.done)
	s.wg.Wait()
	return s.db.Close()
}

func scanActivities(rows *sql.Rows) ([]types.Activity, error) {
	defer rows.Close()

	activities := []types.Activity{}
	for rows.Next() {
		var (
			a          types.Activity
			amount     sql.NullFloat64
			entityID   sql.NullString
			entityType sql.NullString
			metadata   sql.NullString
			updatedAt  sql.NullTime
		)
		err := rows.Scan(&a.ID, &a.Type, &a.Description,
			&a.Actor.ID, &a.Actor.Name, &a.Actor.Role,
			&a.Status, &amount, &entityID, &entityType, &metadata,
			&a.CreatedAt, &updatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		if amount.Valid {
			a.Amount = &amount.Float64
		}
		if entityID.Valid || entityType.Valid {
			a.Entity = &types.EntityRef{ID: entityID.String, Type: entityType.String}
		}
		if metadata.Valid {
			if err := json.Unmarshal([]byte(metadata.String), &a.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata for %s: %w", a.ID, err)
			}
		}
		if updatedAt.Valid {
			t := updatedAt.Time
			a.UpdatedAt = &t
		}
		activities = append(activities, a)
	}
	return activities, rows.Err()
}
