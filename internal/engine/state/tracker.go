package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aryasuneesh/feature-discovery/internal/engine/event"
)

const (
	casAttempts  = 3
	casBaseDelay = 25 * time.Millisecond
)

// ErrRetryExhausted is returned when repeated version conflicts prevent a
// transition from being recorded.
var ErrRetryExhausted = errors.New("discovery state update retries exhausted")

// Tracker applies interaction events to durable discovery state. Writes
// use compare-and-set with a short bounded retry so concurrent events for
// the same pair serialize without locks.
type Tracker struct {
	store   *Store
	backoff Backoff
	logger  *slog.Logger
}

// NewTracker creates a tracker over the given store.
func NewTracker(store *Store, backoff Backoff, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{store: store, backoff: backoff, logger: logger}
}

// Apply folds one event into the pair's state and returns the resulting
// state. Replays and events against terminal stages return the current
// state unchanged.
func (t *Tracker) Apply(ctx context.Context, ev event.InteractionEvent) (DiscoveryState, error) {
	delay := casBaseDelay
	for attempt := 1; attempt <= casAttempts; attempt++ {
		st, err := t.store.Get(ctx, ev.UserID, ev.FeatureID)
		if err != nil {
			return DiscoveryState{}, err
		}

		next, changed := Apply(st, ev, t.backoff)
		if !changed {
			return st, nil
		}

		err = t.store.CompareAndSet(ctx, next)
		if err == nil {
			if next.Stage != st.Stage {
				t.logger.Debug("discovery stage transition",
					"user_id", ev.UserID,
					"feature_id", ev.FeatureID,
					"from", string(st.Stage),
					"to", string(next.Stage))
			}
			next.Version = st.Version + 1
			return next, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return DiscoveryState{}, err
		}

		if attempt < casAttempts {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return DiscoveryState{}, ctx.Err()
			}
			delay *= 2
		}
	}
	return DiscoveryState{}, fmt.Errorf("%w: %s/%s", ErrRetryExhausted, ev.UserID, ev.FeatureID)
}

// RecordRecommended marks each feature as recommended at the given time.
// Used by the orchestrator after emitting a recommendation set.
func (t *Tracker) RecordRecommended(ctx context.Context, userID string, featureIDs []string, tsMs int64) error {
	for _, id := range featureIDs {
		ev := event.InteractionEvent{
			UserID:    userID,
			FeatureID: id,
			Kind:      event.KindRecommended,
			Ts:        tsMs,
		}
		if _, err := t.Apply(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

// States returns all recorded states for a user keyed by feature ID.
func (t *Tracker) States(ctx context.Context, userID string) (map[string]DiscoveryState, error) {
	return t.store.GetAllForUser(ctx, userID)
}

// State returns the state for one pair, materializing the unseen state
// for pairs with no row.
func (t *Tracker) State(ctx context.Context, userID, featureID string) (DiscoveryState, error) {
	return t.store.Get(ctx, userID, featureID)
}

// StageCounts returns the per-stage feature counts for a user.
func (t *Tracker) StageCounts(ctx context.Context, userID string) (map[Stage]int, error) {
	return t.store.CountByStage(ctx, userID)
}
