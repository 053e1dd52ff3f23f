// Package candidate selects the features eligible for scoring given a
// context snapshot and the user's discovery state.
package candidate

import (
	"sort"

	"github.com/aryasuneesh/feature-discovery/internal/engine/catalog"
	"github.com/aryasuneesh/feature-discovery/internal/engine/contextfact"
	"github.com/aryasuneesh/feature-discovery/internal/engine/state"
)

// DefaultExplorationQuota is how many otherwise unmatched low-exposure
// features are admitted per request.
const DefaultExplorationQuota = 2

// Candidate pairs a feature with the discovery state it was admitted
// under and how it got in.
type Candidate struct {
	Feature catalog.Feature
	State   state.DiscoveryState

	// Exploration marks candidates admitted by the exploration quota
	// rather than a context match.
	Exploration bool
}

// Generator filters the catalog down to scorable candidates.
type Generator struct {
	catalog              catalog.Provider
	enforcePrerequisites bool
	explorationQuota     int
}

// Options configures candidate generation.
type Options struct {
	// EnforcePrerequisites excludes features whose prerequisites the
	// user has not adopted.
	EnforcePrerequisites bool
	// ExplorationQuota admits up to this many unmatched features with
	// the lowest recommendation exposure. Negative means zero.
	ExplorationQuota int
}

// NewGenerator creates a generator over the given catalog.
func NewGenerator(cat catalog.Provider, opts Options) *Generator {
	quota := opts.ExplorationQuota
	if quota < 0 {
		quota = 0
	}
	return &Generator{
		catalog:              cat,
		enforcePrerequisites: opts.EnforcePrerequisites,
		explorationQuota:     quota,
	}
}

// Generate returns the eligible candidates for a context, ordered by
// feature ID. Features in terminal stages, in cooldown, or behind unmet
// prerequisites never appear.
func (g *Generator) Generate(fact contextfact.ContextFact, states map[string]state.DiscoveryState, nowMs int64) []Candidate {
	features := g.catalog.ListFeatures()

	stateFor := func(id string) state.DiscoveryState {
		if st, ok := states[id]; ok {
			return st
		}
		return state.NewState(fact.UserID, id)
	}

	var matched []Candidate
	var unmatched []Candidate
	for _, f := range features {
		st := stateFor(f.ID)
		if st.Stage.Terminal() {
			continue
		}
		if st.InCooldown(nowMs) {
			continue
		}
		if g.enforcePrerequisites && !g.prerequisitesMet(f, states) {
			continue
		}

		c := Candidate{Feature: f, State: st}
		if matchesContext(f, fact) {
			matched = append(matched, c)
		} else {
			unmatched = append(unmatched, c)
		}
	}

	// Exploration: admit the least-recommended unmatched features so
	// the system never starves features that no context ever names.
	if g.explorationQuota > 0 && len(unmatched) > 0 {
		sort.Slice(unmatched, func(i, j int) bool {
			a, b := unmatched[i], unmatched[j]
			if a.State.RecommendationCount != b.State.RecommendationCount {
				return a.State.RecommendationCount < b.State.RecommendationCount
			}
			return a.Feature.ID < b.Feature.ID
		})
		n := g.explorationQuota
		if n > len(unmatched) {
			n = len(unmatched)
		}
		for i := 0; i < n; i++ {
			c := unmatched[i]
			c.Exploration = true
			matched = append(matched, c)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Feature.ID < matched[j].Feature.ID
	})
	return matched
}

// prerequisitesMet reports whether every prerequisite of f has reached
// at least the tried stage for the user.
func (g *Generator) prerequisitesMet(f catalog.Feature, states map[string]state.DiscoveryState) bool {
	for _, dep := range f.Prerequisites {
		st, ok := states[dep]
		if !ok || st.Stage.Rank() < state.StageTried.Rank() {
			return false
		}
	}
	return true
}

// matchesContext reports whether the feature's tags intersect the
// context's derived intents.
func matchesContext(f catalog.Feature, fact contextfact.ContextFact) bool {
	if len(fact.Intents) == 0 {
		return false
	}
	tags := f.TagSet()
	for _, intent := range fact.Intents {
		if tags[intent] {
			return true
		}
	}
	return false
}
