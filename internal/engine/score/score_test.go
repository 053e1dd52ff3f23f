package score

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/aryasuneesh/feature-discovery/internal/engine/candidate"
	"github.com/aryasuneesh/feature-discovery/internal/engine/catalog"
	"github.com/aryasuneesh/feature-discovery/internal/engine/contextfact"
	"github.com/aryasuneesh/feature-discovery/internal/engine/semantic"
	"github.com/aryasuneesh/feature-discovery/internal/engine/state"
)

func cand(id, category string, complexity int, tags ...string) candidate.Candidate {
	return candidate.Candidate{
		Feature: catalog.Feature{
			ID: id, Name: id, Category: category, Tags: tags, Complexity: complexity,
		},
		State: state.NewState("u1", id),
	}
}

func fact(intents ...string) contextfact.ContextFact {
	return contextfact.ContextFact{UserID: "u1", Ts: 1000, Intents: intents}
}

func rankedIDs(scored []Scored) []string {
	out := make([]string, len(scored))
	for i, s := range scored {
		out[i] = s.Candidate.Feature.ID
	}
	return out
}

func TestScore_DashboardScenario(t *testing.T) {
	scorer := NewScorer(DefaultWeights(), nil)
	cands := []candidate.Candidate{
		cand("dash", "analytics", 1, "dashboard"),
		cand("exp", "data", 1, "export"),
		cand("bill", "admin", 1, "billing"),
	}

	scored := scorer.Score(context.Background(), fact("dashboard"), cands, nil)
	if scored[0].Candidate.Feature.ID != "dash" {
		t.Fatalf("dashboard feature should rank first, got %v", rankedIDs(scored))
	}
	found := false
	for _, r := range scored[0].Reasons {
		if r == ReasonContextMatch {
			found = true
		}
	}
	if !found {
		t.Errorf("expected %s reason, got %v", ReasonContextMatch, scored[0].Reasons)
	}
}

func TestScore_Deterministic(t *testing.T) {
	scorer := NewScorer(DefaultWeights(), &semantic.Fixed{Default: 0.3})
	cands := []candidate.Candidate{
		cand("a", "c1", 2, "x"),
		cand("b", "c2", 1, "x", "y"),
		cand("c", "c3", 3, "y"),
	}
	pop := map[string]float64{"a": 2.0, "b": 1.0}

	first := scorer.Score(context.Background(), fact("x", "y"), cands, pop)
	second := scorer.Score(context.Background(), fact("x", "y"), cands, pop)
	if !reflect.DeepEqual(rankedIDs(first), rankedIDs(second)) {
		t.Errorf("rankings differ: %v vs %v", rankedIDs(first), rankedIDs(second))
	}
}

func TestScore_TieBreak(t *testing.T) {
	scorer := NewScorer(DefaultWeights(), nil)

	// Identical inputs except complexity: equal scores, lower tier first.
	cands := []candidate.Candidate{
		cand("zeta", "c", 3, "x"),
		cand("alpha", "c", 1, "x"),
	}
	scored := scorer.Score(context.Background(), fact("x"), cands, nil)
	if scored[0].Candidate.Feature.ID != "alpha" {
		t.Errorf("lower complexity should win ties, got %v", rankedIDs(scored))
	}

	// Equal complexity too: lexical feature ID order.
	cands = []candidate.Candidate{
		cand("zeta", "c", 1, "x"),
		cand("alpha", "c", 1, "x"),
	}
	scored = scorer.Score(context.Background(), fact("x"), cands, nil)
	if scored[0].Candidate.Feature.ID != "alpha" {
		t.Errorf("lexical order should break remaining ties, got %v", rankedIDs(scored))
	}
}

func TestScore_NoveltyFavorsUnderExposed(t *testing.T) {
	scorer := NewScorer(Weights{Novelty: 1.0}, nil)

	fresh := cand("fresh", "c", 1, "x")
	stale := cand("stale", "c", 1, "x")
	stale.State.RecommendationCount = 4

	scored := scorer.Score(context.Background(), fact(), []candidate.Candidate{stale, fresh}, nil)
	if scored[0].Candidate.Feature.ID != "fresh" {
		t.Fatalf("under-exposed feature should rank first, got %v", rankedIDs(scored))
	}
	if scored[0].Components.Novelty != 1.0 {
		t.Errorf("fresh novelty should be 1.0, got %f", scored[0].Components.Novelty)
	}
	if scored[1].Components.Novelty != 0.2 {
		t.Errorf("stale novelty should be 0.2, got %f", scored[1].Components.Novelty)
	}
}

func TestScore_PopularityNormalized(t *testing.T) {
	scorer := NewScorer(Weights{Popularity: 1.0}, nil)
	cands := []candidate.Candidate{cand("a", "c", 1), cand("b", "c", 1)}
	pop := map[string]float64{"a": 4.0, "b": 1.0}

	scored := scorer.Score(context.Background(), fact(), cands, pop)
	for _, s := range scored {
		if s.Components.Popularity < 0 || s.Components.Popularity > 1 {
			t.Errorf("popularity out of range: %f", s.Components.Popularity)
		}
	}
	if scored[0].Candidate.Feature.ID != "a" || scored[0].Components.Popularity != 1.0 {
		t.Errorf("most popular should normalize to 1.0, got %+v", scored[0])
	}
}

func TestScore_SemanticTimeoutDegrades(t *testing.T) {
	slow := &semantic.Fixed{Default: 0.9, Delay: 100 * time.Millisecond}
	cached := semantic.NewCached(slow, semantic.CachedOptions{Timeout: 5 * time.Millisecond})
	scorer := NewScorer(DefaultWeights(), cached)

	cands := []candidate.Candidate{cand("a", "c", 1, "x"), cand("b", "c", 1)}
	scored := scorer.Score(context.Background(), fact("x"), cands, nil)

	if len(scored) != 2 {
		t.Fatalf("degraded collaborator must not drop candidates, got %d", len(scored))
	}
	for _, s := range scored {
		if s.Components.Semantic != 0 {
			t.Errorf("%s: semantic component should degrade to 0, got %f",
				s.Candidate.Feature.ID, s.Components.Semantic)
		}
	}
	if scored[0].Candidate.Feature.ID != "a" {
		t.Errorf("context match should still rank, got %v", rankedIDs(scored))
	}
}

func TestScore_SemanticErrorDegrades(t *testing.T) {
	failing := &semantic.Fixed{Err: errors.New("boom")}
	cached := semantic.NewCached(failing, semantic.CachedOptions{Timeout: time.Second})
	scorer := NewScorer(DefaultWeights(), cached)

	scored := scorer.Score(context.Background(), fact("x"),
		[]candidate.Candidate{cand("a", "c", 1, "x")}, nil)
	if len(scored) != 1 || scored[0].Components.Semantic != 0 {
		t.Errorf("similarity error should degrade to 0: %+v", scored)
	}
}

func TestScore_FiniteAndNormalized(t *testing.T) {
	scorer := NewScorer(DefaultWeights(), &semantic.Fixed{Default: 1.0})
	cands := []candidate.Candidate{cand("a", "c", 1, "x", "y")}
	pop := map[string]float64{"a": 10}

	scored := scorer.Score(context.Background(), fact("x", "y"), cands, pop)
	s := scored[0].Score
	if s < 0 || s > 1 {
		t.Errorf("score out of [0,1]: %f", s)
	}
}
