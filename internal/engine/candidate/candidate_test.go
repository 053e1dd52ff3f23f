package candidate

import (
	"testing"

	"github.com/aryasuneesh/feature-discovery/internal/engine/catalog"
	"github.com/aryasuneesh/feature-discovery/internal/engine/contextfact"
	"github.com/aryasuneesh/feature-discovery/internal/engine/state"
)

func testCatalog(t *testing.T, features []catalog.Feature) *catalog.Static {
	t.Helper()
	cat, err := catalog.NewStatic(features)
	if err != nil {
		t.Fatal(err)
	}
	return cat
}

func fact(intents ...string) contextfact.ContextFact {
	return contextfact.ContextFact{UserID: "u1", Ts: 1000, Intents: intents}
}

func ids(cands []Candidate) []string {
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.Feature.ID
	}
	return out
}

func TestGenerate_TagIntersection(t *testing.T) {
	cat := testCatalog(t, []catalog.Feature{
		{ID: "export", Name: "Export", Category: "data", Tags: []string{"export"}, Complexity: 1},
		{ID: "billing", Name: "Billing", Category: "admin", Tags: []string{"billing"}, Complexity: 1},
	})
	gen := NewGenerator(cat, Options{})

	cands := gen.Generate(fact("export"), nil, 2000)
	if len(cands) != 1 || cands[0].Feature.ID != "export" {
		t.Fatalf("expected only export, got %v", ids(cands))
	}
	if cands[0].Exploration {
		t.Error("matched candidate should not be marked exploration")
	}
}

func TestGenerate_ExcludesTerminalStages(t *testing.T) {
	cat := testCatalog(t, []catalog.Feature{
		{ID: "a", Name: "A", Category: "c", Tags: []string{"x"}, Complexity: 1},
		{ID: "b", Name: "B", Category: "c", Tags: []string{"x"}, Complexity: 1},
		{ID: "c", Name: "C", Category: "c", Tags: []string{"x"}, Complexity: 1},
	})
	gen := NewGenerator(cat, Options{})

	states := map[string]state.DiscoveryState{
		"a": {UserID: "u1", FeatureID: "a", Stage: state.StageAdopted},
		"b": {UserID: "u1", FeatureID: "b", Stage: state.StageDismissedPerm},
	}
	cands := gen.Generate(fact("x"), states, 2000)
	if len(cands) != 1 || cands[0].Feature.ID != "c" {
		t.Fatalf("terminal stages should be excluded, got %v", ids(cands))
	}
}

func TestGenerate_ExcludesCooldown(t *testing.T) {
	cat := testCatalog(t, []catalog.Feature{
		{ID: "a", Name: "A", Category: "c", Tags: []string{"x"}, Complexity: 1},
	})
	gen := NewGenerator(cat, Options{})

	states := map[string]state.DiscoveryState{
		"a": {UserID: "u1", FeatureID: "a", Stage: state.StageRecommended, CooldownUntilMs: 5000},
	}
	if cands := gen.Generate(fact("x"), states, 2000); len(cands) != 0 {
		t.Errorf("cooling-down feature should be excluded, got %v", ids(cands))
	}

	// Eligible again once the cooldown has passed.
	if cands := gen.Generate(fact("x"), states, 5000); len(cands) != 1 {
		t.Errorf("expired cooldown should readmit the feature, got %v", ids(cands))
	}
}

func TestGenerate_PrerequisiteGating(t *testing.T) {
	cat := testCatalog(t, []catalog.Feature{
		{ID: "basic", Name: "Basic", Category: "c", Tags: []string{"x"}, Complexity: 1},
		{ID: "advanced", Name: "Advanced", Category: "c", Tags: []string{"x"},
			Prerequisites: []string{"basic"}, Complexity: 2},
	})
	gen := NewGenerator(cat, Options{EnforcePrerequisites: true})

	// Prerequisite unseen: advanced is excluded.
	cands := gen.Generate(fact("x"), nil, 2000)
	if len(cands) != 1 || cands[0].Feature.ID != "basic" {
		t.Fatalf("expected only basic, got %v", ids(cands))
	}

	// Viewed is not enough.
	states := map[string]state.DiscoveryState{
		"basic": {UserID: "u1", FeatureID: "basic", Stage: state.StageViewed},
	}
	cands = gen.Generate(fact("x"), states, 2000)
	if len(cands) != 1 {
		t.Fatalf("viewed prerequisite should not unlock, got %v", ids(cands))
	}

	// Tried unlocks the dependent feature.
	states["basic"] = state.DiscoveryState{UserID: "u1", FeatureID: "basic", Stage: state.StageTried}
	cands = gen.Generate(fact("x"), states, 2000)
	if len(cands) != 2 {
		t.Fatalf("tried prerequisite should unlock, got %v", ids(cands))
	}
}

func TestGenerate_PrerequisitesNotEnforced(t *testing.T) {
	cat := testCatalog(t, []catalog.Feature{
		{ID: "basic", Name: "Basic", Category: "c", Tags: []string{"x"}, Complexity: 1},
		{ID: "advanced", Name: "Advanced", Category: "c", Tags: []string{"x"},
			Prerequisites: []string{"basic"}, Complexity: 2},
	})
	gen := NewGenerator(cat, Options{EnforcePrerequisites: false})

	cands := gen.Generate(fact("x"), nil, 2000)
	if len(cands) != 2 {
		t.Errorf("disabled gating should admit both, got %v", ids(cands))
	}
}

func TestGenerate_ExplorationQuota(t *testing.T) {
	cat := testCatalog(t, []catalog.Feature{
		{ID: "match", Name: "M", Category: "c", Tags: []string{"x"}, Complexity: 1},
		{ID: "cold1", Name: "C1", Category: "c", Tags: []string{"other"}, Complexity: 1},
		{ID: "cold2", Name: "C2", Category: "c", Tags: []string{"other"}, Complexity: 1},
		{ID: "warm", Name: "W", Category: "c", Tags: []string{"other"}, Complexity: 1},
	})
	gen := NewGenerator(cat, Options{ExplorationQuota: 2})

	states := map[string]state.DiscoveryState{
		"warm": {UserID: "u1", FeatureID: "warm", Stage: state.StageRecommended, RecommendationCount: 5},
	}
	cands := gen.Generate(fact("x"), states, 2000)
	if len(cands) != 3 {
		t.Fatalf("expected match plus 2 exploration, got %v", ids(cands))
	}

	exploration := 0
	for _, c := range cands {
		if c.Exploration {
			exploration++
			if c.Feature.ID == "warm" {
				t.Error("exploration should prefer least-recommended features")
			}
		}
	}
	if exploration != 2 {
		t.Errorf("expected 2 exploration candidates, got %d", exploration)
	}
}

func TestGenerate_EmptyCatalog(t *testing.T) {
	gen := NewGenerator(testCatalog(t, nil), Options{ExplorationQuota: 2})
	if cands := gen.Generate(fact("x"), nil, 2000); len(cands) != 0 {
		t.Errorf("empty catalog should yield no candidates, got %v", ids(cands))
	}
}

func TestGenerate_NoIntentsOnlyExploration(t *testing.T) {
	cat := testCatalog(t, []catalog.Feature{
		{ID: "a", Name: "A", Category: "c", Tags: []string{"x"}, Complexity: 1},
		{ID: "b", Name: "B", Category: "c", Tags: []string{"y"}, Complexity: 1},
	})
	gen := NewGenerator(cat, Options{ExplorationQuota: 1})

	cands := gen.Generate(fact(), nil, 2000)
	if len(cands) != 1 || !cands[0].Exploration {
		t.Errorf("intent-free context should yield exploration only, got %v", ids(cands))
	}
}
