package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// ErrVersionConflict is returned when a compare-and-set loses a race with
// a concurrent writer.
var ErrVersionConflict = errors.New("discovery state version conflict")

// Store persists discovery state rows with optimistic concurrency.
type Store struct {
	db       *sql.DB
	getStmt  *sql.Stmt
	userStmt *sql.Stmt
}

// NewStore creates a state store over the given database.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.prepareStatements(); err != nil {
		return nil, err
	}
	return s, nil
}

const stateColumns = `user_id, feature_id, stage, last_transition_ms,
	recommendation_count, consecutive_dismissals, cooldown_until_ms,
	last_event_kind, last_event_ms, version`

func (s *Store) prepareStatements() error {
	var err error

	s.getStmt, err = s.db.Prepare(`
		SELECT ` + stateColumns + ` FROM discovery_state
		WHERE user_id = ? AND feature_id = ?
	`)
	if err != nil {
		return err
	}

	s.userStmt, err = s.db.Prepare(`
		SELECT ` + stateColumns + ` FROM discovery_state
		WHERE user_id = ?
	`)
	if err != nil {
		s.getStmt.Close()
		return err
	}

	return nil
}

// Close releases resources held by the store.
func (s *Store) Close() error {
	if s.getStmt != nil {
		s.getStmt.Close()
	}
	if s.userStmt != nil {
		s.userStmt.Close()
	}
	return nil
}

func scanState(scan func(dest ...any) error) (DiscoveryState, error) {
	var st DiscoveryState
	var stage, lastKind string
	err := scan(&st.UserID, &st.FeatureID, &stage, &st.LastTransitionMs,
		&st.RecommendationCount, &st.ConsecutiveDismissals, &st.CooldownUntilMs,
		&lastKind, &st.LastEventMs, &st.Version)
	if err != nil {
		return DiscoveryState{}, err
	}
	st.Stage = Stage(stage)
	st.LastEventKind = lastKind
	return st, nil
}

// Get returns the state for one pair. Pairs with no row yet come back as
// the initial unseen state with Version zero.
func (s *Store) Get(ctx context.Context, userID, featureID string) (DiscoveryState, error) {
	row := s.getStmt.QueryRowContext(ctx, userID, featureID)
	st, err := scanState(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return NewState(userID, featureID), nil
	}
	if err != nil {
		return DiscoveryState{}, fmt.Errorf("failed to load discovery state: %w", err)
	}
	return st, nil
}

// GetAllForUser returns every recorded state row for a user, keyed by
// feature ID.
func (s *Store) GetAllForUser(ctx context.Context, userID string) (map[string]DiscoveryState, error) {
	rows, err := s.userStmt.QueryContext(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load discovery states: %w", err)
	}
	defer rows.Close()

	states := make(map[string]DiscoveryState)
	for rows.Next() {
		st, err := scanState(rows.Scan)
		if err != nil {
			return nil, err
		}
		states[st.FeatureID] = st
	}
	return states, rows.Err()
}

// CompareAndSet writes next if the stored row still carries next's prior
// version. A Version of zero inserts, any other updates. Returns
// ErrVersionConflict when another writer got there first.
func (s *Store) CompareAndSet(ctx context.Context, next DiscoveryState) error {
	if next.Version == 0 {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO discovery_state (`+stateColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
		`, next.UserID, next.FeatureID, string(next.Stage), next.LastTransitionMs,
			next.RecommendationCount, next.ConsecutiveDismissals, next.CooldownUntilMs,
			next.LastEventKind, next.LastEventMs)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrVersionConflict
			}
			return fmt.Errorf("failed to insert discovery state: %w", err)
		}
		return nil
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE discovery_state
		SET stage = ?, last_transition_ms = ?, recommendation_count = ?,
			consecutive_dismissals = ?, cooldown_until_ms = ?,
			last_event_kind = ?, last_event_ms = ?, version = version + 1
		WHERE user_id = ? AND feature_id = ? AND version = ?
	`, string(next.Stage), next.LastTransitionMs, next.RecommendationCount,
		next.ConsecutiveDismissals, next.CooldownUntilMs,
		next.LastEventKind, next.LastEventMs,
		next.UserID, next.FeatureID, next.Version)
	if err != nil {
		return fmt.Errorf("failed to update discovery state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrVersionConflict
	}
	return nil
}

// CountByStage returns how many of a user's features sit in each stage.
func (s *Store) CountByStage(ctx context.Context, userID string) (map[Stage]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT stage, COUNT(*) FROM discovery_state
		WHERE user_id = ?
		GROUP BY stage
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count stages: %w", err)
	}
	defer rows.Close()

	counts := make(map[Stage]int)
	for rows.Next() {
		var stage string
		var n int
		if err := rows.Scan(&stage, &n); err != nil {
			return nil, err
		}
		counts[Stage(stage)] = n
	}
	return counts, rows.Err()
}

func isUniqueViolation(err error) bool {
	// modernc.org/sqlite surfaces constraint failures in the error text.
	return err != nil && strings.Contains(err.Error(), "constraint failed")
}
