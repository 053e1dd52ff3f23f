// Package recommend orchestrates the recommendation pipeline: context
// intake, candidate generation, scoring, selection, and the feedback of
// emitted recommendations into discovery state.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aryasuneesh/feature-discovery/internal/engine/candidate"
	"github.com/aryasuneesh/feature-discovery/internal/engine/catalog"
	"github.com/aryasuneesh/feature-discovery/internal/engine/contextfact"
	"github.com/aryasuneesh/feature-discovery/internal/engine/event"
	"github.com/aryasuneesh/feature-discovery/internal/engine/history"
	"github.com/aryasuneesh/feature-discovery/internal/engine/score"
	"github.com/aryasuneesh/feature-discovery/internal/engine/state"
	"github.com/aryasuneesh/feature-discovery/internal/log"
)

// ErrUnknownFeature is returned when an event names a feature the
// catalog does not carry.
var ErrUnknownFeature = errors.New("unknown feature")

// Recommendation is one ranked, explained entry in a recommendation set.
type Recommendation struct {
	FeatureID  string           `json:"feature_id"`
	Name       string           `json:"name"`
	Category   string           `json:"category"`
	Complexity int              `json:"complexity"`
	Score      float64          `json:"score"`
	Reasons    []string         `json:"reasons"`
	Components score.Components `json:"components"`
}

// Options configures the orchestrator's selection behavior.
type Options struct {
	// TopK is the maximum recommendation set size.
	TopK int
	// DiversityCap is the maximum entries per category within a set.
	DiversityCap int
	// HistoryLookback bounds how far back popularity aggregation reads.
	HistoryLookback time.Duration
	// HistoryMaxEvents bounds per-user history queries.
	HistoryMaxEvents int
}

// DefaultOptions returns the standard selection parameters.
func DefaultOptions() Options {
	return Options{
		TopK:             5,
		DiversityCap:     2,
		HistoryLookback:  90 * 24 * time.Hour,
		HistoryMaxEvents: 500,
	}
}

// Orchestrator wires the pipeline stages together.
type Orchestrator struct {
	catalog   catalog.Provider
	window    *contextfact.Window
	history   *history.Store
	tracker   *state.Tracker
	generator *candidate.Generator
	scorer    *score.Scorer
	opts      Options
	logger    *slog.Logger

	now func() int64
}

// New creates an orchestrator over the given stages.
func New(cat catalog.Provider, window *contextfact.Window, hist *history.Store,
	tracker *state.Tracker, gen *candidate.Generator, scorer *score.Scorer,
	opts Options, logger *slog.Logger) *Orchestrator {
	if opts.TopK <= 0 {
		opts.TopK = DefaultOptions().TopK
	}
	if opts.DiversityCap <= 0 {
		opts.DiversityCap = DefaultOptions().DiversityCap
	}
	if opts.HistoryLookback <= 0 {
		opts.HistoryLookback = DefaultOptions().HistoryLookback
	}
	if opts.HistoryMaxEvents <= 0 {
		opts.HistoryMaxEvents = DefaultOptions().HistoryMaxEvents
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		catalog:   cat,
		window:    window,
		history:   hist,
		tracker:   tracker,
		generator: gen,
		scorer:    scorer,
		opts:      opts,
		logger:    logger,
		now:       func() int64 { return time.Now().UnixMilli() },
	}
}

// SubmitContext validates and normalizes a context submission and adds
// the resulting fact to the user's rolling window.
func (o *Orchestrator) SubmitContext(sub contextfact.Submission) (*contextfact.ContextFact, error) {
	fact, err := contextfact.Normalize(sub)
	if err != nil {
		return nil, err
	}
	o.window.Push(fact)
	o.logger.Debug("context accepted",
		"user_id", fact.UserID,
		"context_id", fact.ID,
		"intents", len(fact.Intents))
	return fact, nil
}

// Recommend produces the ranked recommendation set for a user and
// records a recommended transition for every entry returned. When sub is
// non-nil it is normalized and pushed before matching. Users with no
// context at all get an implicit empty one, so unknown users are served
// exploration candidates rather than an error. k bounds the result size;
// zero or negative falls back to the configured top-K.
func (o *Orchestrator) Recommend(ctx context.Context, userID string, sub *contextfact.Submission, k int) ([]Recommendation, error) {
	if sub != nil {
		if _, err := o.SubmitContext(*sub); err != nil {
			return nil, err
		}
	}

	nowMs := o.now()

	fact := o.window.Latest(userID)
	if fact == nil {
		fact = &contextfact.ContextFact{UserID: userID, Ts: nowMs}
	}

	states, err := o.tracker.States(ctx, userID)
	if err != nil {
		// Degraded reads treat every pair as unseen rather than
		// failing the request.
		o.logger.Warn("discovery state read failed, serving degraded",
			"user_id", userID, "error", err)
		states = map[string]state.DiscoveryState{}
	}

	cands := o.generator.Generate(*fact, states, nowMs)
	if len(cands) == 0 {
		return []Recommendation{}, nil
	}

	sinceMs := nowMs - o.opts.HistoryLookback.Milliseconds()
	popularity, err := o.history.PopularityWeights(ctx, sinceMs, nowMs)
	if err != nil {
		return nil, err
	}

	scored := o.scorer.Score(ctx, *fact, cands, popularity)
	picked := o.selectTopK(scored, k)

	recs := make([]Recommendation, 0, len(picked))
	ids := make([]string, 0, len(picked))
	for _, sc := range picked {
		f := sc.Candidate.Feature
		recs = append(recs, Recommendation{
			FeatureID:  f.ID,
			Name:       f.Name,
			Category:   f.Category,
			Complexity: f.Complexity,
			Score:      sc.Score,
			Reasons:    sc.Reasons,
			Components: sc.Components,
		})
		ids = append(ids, f.ID)
	}

	if err := o.recordEmitted(ctx, userID, ids, nowMs); err != nil {
		return nil, err
	}

	o.logger.Info("recommendations emitted",
		"user_id", userID,
		"context_id", fact.ID,
		"count", len(recs))
	return recs, nil
}

// selectTopK walks the ranked list taking at most k entries and at most
// DiversityCap per category. Short results are never padded with
// ineligible features.
func (o *Orchestrator) selectTopK(scored []score.Scored, k int) []score.Scored {
	if k <= 0 {
		k = o.opts.TopK
	}
	perCategory := make(map[string]int)
	var picked []score.Scored
	for _, sc := range scored {
		if len(picked) >= k {
			break
		}
		cat := sc.Candidate.Feature.Category
		if perCategory[cat] >= o.opts.DiversityCap {
			continue
		}
		perCategory[cat]++
		picked = append(picked, sc)
	}
	return picked
}

// recordEmitted appends a recommended event for each feature and drives
// the corresponding stage transitions.
func (o *Orchestrator) recordEmitted(ctx context.Context, userID string, featureIDs []string, tsMs int64) error {
	for _, id := range featureIDs {
		ev := event.InteractionEvent{
			UserID:    userID,
			FeatureID: id,
			Kind:      event.KindRecommended,
			Ts:        tsMs,
		}
		if err := o.history.Append(ctx, ev); err != nil {
			return err
		}
	}
	return o.tracker.RecordRecommended(ctx, userID, featureIDs, tsMs)
}

// RecordEvent validates, logs, and applies one interaction event,
// returning the resulting discovery state. Events naming features absent
// from the catalog are rejected.
func (o *Orchestrator) RecordEvent(ctx context.Context, ev event.InteractionEvent) (state.DiscoveryState, error) {
	if _, err := o.catalog.Get(ev.FeatureID); err != nil {
		log.LogEventDropped(o.logger, ev.UserID, ev.FeatureID, "unknown feature")
		return state.DiscoveryState{}, fmt.Errorf("%w: %s", ErrUnknownFeature, ev.FeatureID)
	}
	if ev.Ts <= 0 {
		ev.Ts = o.now()
	}

	if err := o.history.Append(ctx, ev); err != nil {
		return state.DiscoveryState{}, err
	}
	return o.tracker.Apply(ctx, ev)
}

// UserInsights summarizes a user's discovery progress.
type UserInsights struct {
	UserID         string         `json:"user_id"`
	StageCounts    map[string]int `json:"stage_counts"`
	CatalogSize    int            `json:"catalog_size"`
	AdoptionRate   float64        `json:"adoption_rate"`
	RecentEvents   int            `json:"recent_events"`
	LastActivityMs int64          `json:"last_activity_ms,omitempty"`
}

// Insights returns a user's per-stage feature counts, adoption rate over
// the catalog, and recent activity within the history lookback.
func (o *Orchestrator) Insights(ctx context.Context, userID string) (UserInsights, error) {
	counts, err := o.tracker.StageCounts(ctx, userID)
	if err != nil {
		return UserInsights{}, err
	}

	out := UserInsights{
		UserID:      userID,
		StageCounts: make(map[string]int, len(counts)),
		CatalogSize: len(o.catalog.ListFeatures()),
	}
	for stage, n := range counts {
		out.StageCounts[string(stage)] = n
	}
	if out.CatalogSize > 0 {
		out.AdoptionRate = float64(counts[state.StageAdopted]) / float64(out.CatalogSize)
	}

	sinceMs := o.now() - o.opts.HistoryLookback.Milliseconds()
	events, err := o.history.Query(ctx, userID, sinceMs, o.opts.HistoryMaxEvents)
	if err != nil {
		return UserInsights{}, err
	}
	out.RecentEvents = len(events)
	if len(events) > 0 {
		out.LastActivityMs = events[0].Ts
	}
	return out, nil
}

// FeatureInsights summarizes cohort interaction with one feature.
type FeatureInsights struct {
	FeatureID    string         `json:"feature_id"`
	EventCounts  map[string]int `json:"event_counts"`
	AdoptionRate float64        `json:"adoption_rate"`
}

// FeatureStats returns cohort-wide event counts and the adoption rate
// among users the feature was recommended to.
func (o *Orchestrator) FeatureStats(ctx context.Context, featureID string) (FeatureInsights, error) {
	if _, err := o.catalog.Get(featureID); err != nil {
		return FeatureInsights{}, fmt.Errorf("%w: %s", ErrUnknownFeature, featureID)
	}

	counts, err := o.history.FeatureCounts(ctx, featureID)
	if err != nil {
		return FeatureInsights{}, err
	}

	out := FeatureInsights{
		FeatureID:   featureID,
		EventCounts: make(map[string]int, len(counts)),
	}
	for kind, n := range counts {
		out.EventCounts[string(kind)] = n
	}
	if rec := counts[event.KindRecommended]; rec > 0 {
		out.AdoptionRate = float64(counts[event.KindAdopted]) / float64(rec)
	}
	return out, nil
}
