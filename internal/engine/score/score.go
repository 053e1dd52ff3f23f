// Package score ranks candidate features with a weighted blend of
// context match, decayed popularity, novelty, and optional semantic
// similarity. Every score carries the reason codes that explain it.
package score

import (
	"context"
	"sort"

	"github.com/aryasuneesh/feature-discovery/internal/engine/candidate"
	"github.com/aryasuneesh/feature-discovery/internal/engine/contextfact"
	"github.com/aryasuneesh/feature-discovery/internal/engine/semantic"
)

// Reason codes attached to scored candidates.
const (
	ReasonContextMatch = "context-match"
	ReasonPopular      = "popular-with-cohort"
	ReasonNovel        = "new-to-you"
	ReasonSemantic     = "semantically-related"
	ReasonExploration  = "exploration"
)

// Weights controls the relative influence of each scoring component.
type Weights struct {
	ContextMatch float64
	Popularity   float64
	Novelty      float64
	Semantic     float64
}

// DefaultWeights returns the standard component weights.
func DefaultWeights() Weights {
	return Weights{
		ContextMatch: 0.45,
		Popularity:   0.25,
		Novelty:      0.15,
		Semantic:     0.15,
	}
}

func (w Weights) total(withSemantic bool) float64 {
	t := w.ContextMatch + w.Popularity + w.Novelty
	if withSemantic {
		t += w.Semantic
	}
	if t <= 0 {
		return 1
	}
	return t
}

// Components holds the unweighted per-component values in [0, 1].
type Components struct {
	ContextMatch float64 `json:"context_match"`
	Popularity   float64 `json:"popularity"`
	Novelty      float64 `json:"novelty"`
	Semantic     float64 `json:"semantic"`
}

// Scored is a candidate with its final score and explanation.
type Scored struct {
	Candidate  candidate.Candidate
	Score      float64
	Components Components
	Reasons    []string
}

// Scorer computes and orders scores for a candidate set.
type Scorer struct {
	weights    Weights
	similarity semantic.Similarity
}

// NewScorer creates a scorer. similarity may be nil, in which case the
// semantic component is disabled and its weight drops out of the blend.
func NewScorer(weights Weights, similarity semantic.Similarity) *Scorer {
	return &Scorer{weights: weights, similarity: similarity}
}

// Score ranks the candidates for a context. popularity maps feature ID
// to its decayed cohort weight. The result is ordered by score
// descending, with ties broken by lower complexity then feature ID.
func (s *Scorer) Score(ctx context.Context, fact contextfact.ContextFact, cands []candidate.Candidate, popularity map[string]float64) []Scored {
	maxPop := 0.0
	for _, v := range popularity {
		if v > maxPop {
			maxPop = v
		}
	}

	contextText := fact.FreeText()
	total := s.weights.total(s.similarity != nil)

	scored := make([]Scored, 0, len(cands))
	for _, c := range cands {
		var comp Components
		var reasons []string

		comp.ContextMatch = contextMatchFraction(c.Feature.TagSet(), fact.Intents)
		if comp.ContextMatch > 0 {
			reasons = append(reasons, ReasonContextMatch)
		}

		if maxPop > 0 {
			comp.Popularity = popularity[c.Feature.ID] / maxPop
			if comp.Popularity >= 0.5 {
				reasons = append(reasons, ReasonPopular)
			}
		}

		comp.Novelty = 1.0 / float64(1+c.State.RecommendationCount)
		if c.State.RecommendationCount == 0 {
			reasons = append(reasons, ReasonNovel)
		}

		if s.similarity != nil {
			sim, err := s.similarity.Similarity(ctx, contextText, c.Feature.Description)
			if err == nil {
				comp.Semantic = sim
				if sim >= 0.5 {
					reasons = append(reasons, ReasonSemantic)
				}
			}
			// Degraded collaborators contribute zero, the request
			// still completes.
		}

		if c.Exploration {
			reasons = append(reasons, ReasonExploration)
		}

		score := (s.weights.ContextMatch*comp.ContextMatch +
			s.weights.Popularity*comp.Popularity +
			s.weights.Novelty*comp.Novelty +
			s.weights.Semantic*comp.Semantic) / total

		scored = append(scored, Scored{
			Candidate:  c,
			Score:      score,
			Components: comp,
			Reasons:    reasons,
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Candidate.Feature.Complexity != b.Candidate.Feature.Complexity {
			return a.Candidate.Feature.Complexity < b.Candidate.Feature.Complexity
		}
		return a.Candidate.Feature.ID < b.Candidate.Feature.ID
	})
	return scored
}

// contextMatchFraction is the share of derived intents present in the
// feature's tag set.
func contextMatchFraction(tags map[string]bool, intents []string) float64 {
	if len(intents) == 0 {
		return 0
	}
	hits := 0
	for _, intent := range intents {
		if tags[intent] {
			hits++
		}
	}
	return float64(hits) / float64(len(intents))
}
