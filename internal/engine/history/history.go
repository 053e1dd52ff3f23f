// Package history implements the append-only interaction event log and the
// recency-decayed popularity aggregates derived from it.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/aryasuneesh/feature-discovery/internal/engine/event"
)

// DefaultTau is the default decay time constant for popularity weights.
const DefaultTau = 7 * 24 * time.Hour

// ErrInvalidEvent is returned when an event fails field validation.
var ErrInvalidEvent = errors.New("invalid interaction event")

// Store provides append and bounded query access over interaction events.
type Store struct {
	db         *sql.DB
	appendStmt *sql.Stmt
	queryStmt  *sql.Stmt
	tau        time.Duration
}

// Options configures the history store.
type Options struct {
	// Tau is the exponential decay time constant for popularity weights.
	// Defaults to DefaultTau (7 days).
	Tau time.Duration
}

// NewStore creates a history store over the given database.
func NewStore(db *sql.DB, opts Options) (*Store, error) {
	tau := opts.Tau
	if tau <= 0 {
		tau = DefaultTau
	}

	s := &Store{db: db, tau: tau}
	if err := s.prepareStatements(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) prepareStatements() error {
	var err error

	s.appendStmt, err = s.db.Prepare(`
		INSERT INTO interaction_event (user_id, feature_id, kind, ts)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}

	s.queryStmt, err = s.db.Prepare(`
		SELECT user_id, feature_id, kind, ts FROM interaction_event
		WHERE user_id = ? AND ts >= ?
		ORDER BY ts DESC
		LIMIT ?
	`)
	if err != nil {
		s.appendStmt.Close()
		return err
	}

	return nil
}

// Close releases resources held by the store.
func (s *Store) Close() error {
	if s.appendStmt != nil {
		s.appendStmt.Close()
	}
	if s.queryStmt != nil {
		s.queryStmt.Close()
	}
	return nil
}

// Append writes one event to the log. Events are immutable once written.
func (s *Store) Append(ctx context.Context, ev event.InteractionEvent) error {
	if ev.UserID == "" || ev.FeatureID == "" {
		return fmt.Errorf("%w: user_id and feature_id are required", ErrInvalidEvent)
	}
	if !event.ValidKind(string(ev.Kind)) {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidEvent, ev.Kind)
	}
	if ev.Ts <= 0 {
		ev.Ts = time.Now().UnixMilli()
	}

	_, err := s.appendStmt.ExecContext(ctx, ev.UserID, ev.FeatureID, string(ev.Kind), ev.Ts)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// Query returns up to limit events for a user since the given timestamp,
// newest first.
func (s *Store) Query(ctx context.Context, userID string, sinceMs int64, limit int) ([]event.InteractionEvent, error) {
	if limit <= 0 {
		limit = 500
	}

	rows, err := s.queryStmt.QueryContext(ctx, userID, sinceMs, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []event.InteractionEvent
	for rows.Next() {
		var ev event.InteractionEvent
		var kind string
		if err := rows.Scan(&ev.UserID, &ev.FeatureID, &kind, &ev.Ts); err != nil {
			return nil, err
		}
		ev.Kind = event.Kind(kind)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// PopularityWeights returns the decayed popularity weight per feature,
// computed over adopted and tried events across all users since sinceMs.
// Each event contributes exp(-age/tau) at the evaluation time atMs.
func (s *Store) PopularityWeights(ctx context.Context, sinceMs, atMs int64) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT feature_id, ts FROM interaction_event
		WHERE kind IN (?, ?) AND ts >= ?
	`, string(event.KindAdopted), string(event.KindTried), sinceMs)
	if err != nil {
		return nil, fmt.Errorf("failed to query popularity events: %w", err)
	}
	defer rows.Close()

	tauMs := float64(s.tau.Milliseconds())
	weights := make(map[string]float64)
	for rows.Next() {
		var featureID string
		var ts int64
		if err := rows.Scan(&featureID, &ts); err != nil {
			return nil, err
		}
		age := float64(atMs - ts)
		if age < 0 {
			age = 0
		}
		weights[featureID] += math.Exp(-age / tauMs)
	}
	return weights, rows.Err()
}

// FeatureCounts returns per-kind event counts for one feature across all
// users. Used by feature insights.
func (s *Store) FeatureCounts(ctx context.Context, featureID string) (map[event.Kind]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, COUNT(*) FROM interaction_event
		WHERE feature_id = ?
		GROUP BY kind
	`, featureID)
	if err != nil {
		return nil, fmt.Errorf("failed to count feature events: %w", err)
	}
	defer rows.Close()

	counts := make(map[event.Kind]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, err
		}
		counts[event.Kind(kind)] = n
	}
	return counts, rows.Err()
}

// Tau returns the configured decay time constant.
func (s *Store) Tau() time.Duration {
	return s.tau
}
