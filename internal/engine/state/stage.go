// Package state tracks per-user per-feature discovery lifecycle stages and
// applies interaction events as stage transitions.
package state

import (
	"math"
	"time"

	"github.com/aryasuneesh/feature-discovery/internal/engine/event"
)

// Stage is a discovery lifecycle stage.
type Stage string

const (
	StageUnseen        Stage = "unseen"
	StageRecommended   Stage = "recommended"
	StageViewed        Stage = "viewed"
	StageTried         Stage = "tried"
	StageAdopted       Stage = "adopted"
	StageDismissedTemp Stage = "dismissed-temporary"
	StageDismissedPerm Stage = "dismissed-permanent"
)

// ValidStage reports whether s is a known stage value.
func ValidStage(s string) bool {
	switch Stage(s) {
	case StageUnseen, StageRecommended, StageViewed, StageTried, StageAdopted,
		StageDismissedTemp, StageDismissedPerm:
		return true
	}
	return false
}

// Terminal reports whether the stage admits no further stage changes.
func (s Stage) Terminal() bool {
	return s == StageAdopted || s == StageDismissedPerm
}

// Rank orders the engagement ladder. Dismissal stages sit outside the
// ladder and rank as zero.
func (s Stage) Rank() int {
	switch s {
	case StageRecommended:
		return 1
	case StageViewed:
		return 2
	case StageTried:
		return 3
	case StageAdopted:
		return 4
	}
	return 0
}

// stageForKind maps an engagement event kind to the stage it implies.
func stageForKind(k event.Kind) (Stage, bool) {
	switch k {
	case event.KindRecommended:
		return StageRecommended, true
	case event.KindViewed:
		return StageViewed, true
	case event.KindTried:
		return StageTried, true
	case event.KindAdopted:
		return StageAdopted, true
	}
	return "", false
}

// MaxConsecutiveDismissals is the number of dismissals in a row after
// which a feature is dismissed permanently. The first dismissal is
// temporary, a second one with no engagement in between is permanent.
const MaxConsecutiveDismissals = 2

// Backoff configures cooldown growth for repeated recommendations and
// dismissals.
type Backoff struct {
	Base             time.Duration
	Factor           float64
	Max              time.Duration
	DismissExtension time.Duration
}

// DefaultBackoff matches the default runtime configuration.
func DefaultBackoff() Backoff {
	return Backoff{
		Base:             6 * time.Hour,
		Factor:           2.0,
		Max:              14 * 24 * time.Hour,
		DismissExtension: 24 * time.Hour,
	}
}

// cooldownFor computes the cooldown window after the nth recommendation.
// The window grows geometrically and is capped at Max.
func (b Backoff) cooldownFor(recommendationCount int) time.Duration {
	if recommendationCount < 1 {
		recommendationCount = 1
	}
	d := float64(b.Base) * math.Pow(b.Factor, float64(recommendationCount-1))
	if d > float64(b.Max) {
		return b.Max
	}
	return time.Duration(d)
}

// DiscoveryState is the durable record for one user and feature pair.
type DiscoveryState struct {
	UserID                string `json:"user_id"`
	FeatureID             string `json:"feature_id"`
	Stage                 Stage  `json:"stage"`
	LastTransitionMs      int64  `json:"last_transition_ms"`
	RecommendationCount   int    `json:"recommendation_count"`
	ConsecutiveDismissals int    `json:"consecutive_dismissals"`
	CooldownUntilMs       int64  `json:"cooldown_until_ms"`
	LastEventKind         string `json:"last_event_kind,omitempty"`
	LastEventMs           int64  `json:"last_event_ms,omitempty"`

	// Version is the optimistic concurrency token. Zero means the row
	// does not exist yet.
	Version int64 `json:"-"`
}

// InCooldown reports whether the feature is suppressed at the given time.
func (d DiscoveryState) InCooldown(nowMs int64) bool {
	return d.CooldownUntilMs > nowMs
}

// NewState returns the initial state for a pair that has no record yet.
func NewState(userID, featureID string) DiscoveryState {
	return DiscoveryState{
		UserID:    userID,
		FeatureID: featureID,
		Stage:     StageUnseen,
	}
}

// Apply folds one event into the state and reports whether anything
// changed. Replays of the last applied event are no-ops, as are events
// against terminal stages. Informational kinds only refresh the last
// event fields.
func Apply(st DiscoveryState, ev event.InteractionEvent, b Backoff) (DiscoveryState, bool) {
	// Exact replay of the last applied event.
	if st.LastEventKind == string(ev.Kind) && st.LastEventMs == ev.Ts {
		return st, false
	}
	if st.Stage.Terminal() {
		return st, false
	}

	next := st
	next.LastEventKind = string(ev.Kind)
	next.LastEventMs = ev.Ts

	switch {
	case ev.Kind == event.KindDismissed:
		next.ConsecutiveDismissals++
		next.LastTransitionMs = ev.Ts
		if next.ConsecutiveDismissals >= MaxConsecutiveDismissals {
			next.Stage = StageDismissedPerm
			next.CooldownUntilMs = 0
		} else {
			next.Stage = StageDismissedTemp
			ext := float64(b.DismissExtension) * math.Pow(b.Factor, float64(next.ConsecutiveDismissals-1))
			if ext > float64(b.Max) {
				ext = float64(b.Max)
			}
			next.CooldownUntilMs = ev.Ts + int64(time.Duration(ext).Milliseconds())
		}
		return next, true

	case ev.Kind == event.KindRecommended:
		next.RecommendationCount++
		next.CooldownUntilMs = ev.Ts + b.cooldownFor(next.RecommendationCount).Milliseconds()
		if st.Stage.Rank() < StageRecommended.Rank() || st.Stage == StageDismissedTemp {
			next.Stage = StageRecommended
		}
		next.LastTransitionMs = ev.Ts
		return next, true

	case ev.Kind.Informational():
		return next, true
	}

	implied, ok := stageForKind(ev.Kind)
	if !ok {
		return st, false
	}

	// Engagement resumes the ladder out of a temporary dismissal and
	// clears the dismissal streak.
	if st.Stage == StageDismissedTemp {
		next.ConsecutiveDismissals = 0
		next.Stage = implied
		next.LastTransitionMs = ev.Ts
		return next, true
	}

	// Forward only: a weaker signal never regresses the stage.
	if implied.Rank() <= st.Stage.Rank() {
		next.ConsecutiveDismissals = 0
		return next, true
	}

	next.ConsecutiveDismissals = 0
	next.Stage = implied
	next.LastTransitionMs = ev.Ts
	return next, true
}
