package contextfact

import (
	"errors"
	"reflect"
	"testing"
)

func TestNormalize_Validation(t *testing.T) {
	var verr *ValidationError

	_, err := Normalize(Submission{Ts: 100})
	if !errors.As(err, &verr) || verr.Field != "user_id" {
		t.Errorf("expected user_id validation error, got %v", err)
	}

	_, err = Normalize(Submission{UserID: "u1"})
	if !errors.As(err, &verr) || verr.Field != "ts" {
		t.Errorf("expected ts validation error, got %v", err)
	}

	_, err = Normalize(Submission{UserID: "u1", Ts: -5})
	if !errors.As(err, &verr) {
		t.Errorf("expected validation error for negative ts, got %v", err)
	}
}

func TestNormalize_RetainsUnknownSignals(t *testing.T) {
	fact, err := Normalize(Submission{
		UserID: "u1",
		Ts:     100,
		Signals: map[string]any{
			"screen":        "dashboard",
			"custom_widget": 42,
			"nested":        map[string]any{"a": 1},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if fact.Signals["custom_widget"] != "42" {
		t.Errorf("non-string signal should be rendered, got %q", fact.Signals["custom_widget"])
	}
	if _, ok := fact.Signals["nested"]; !ok {
		t.Error("unknown signal shapes should be retained as opaque strings")
	}
	if fact.ID == "" {
		t.Error("fact should carry a generated ID")
	}
}

func TestNormalize_DerivesIntents(t *testing.T) {
	fact, err := Normalize(Submission{
		UserID: "u1",
		Ts:     100,
		Signals: map[string]any{
			"screen":         "Dashboard",
			"recent_actions": "export export Report!",
			"custom":         "never-an-intent",
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"dashboard", "export", "report"}
	if !reflect.DeepEqual(fact.Intents, want) {
		t.Errorf("expected intents %v, got %v", want, fact.Intents)
	}
	if fact.HasIntent("never-an-intent") {
		t.Error("non-reserved signals must not contribute intents")
	}
}

func TestNormalize_ListValuedSignal(t *testing.T) {
	fact, err := Normalize(Submission{
		UserID: "u1",
		Ts:     100,
		Signals: map[string]any{
			// JSON arrays decode to []any
			"recent_actions": []any{"export", "billing"},
			"custom_list":    []string{"alpha", "beta"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if fact.Signals["recent_actions"] != "export billing" {
		t.Errorf("list signal should flatten element-wise, got %q", fact.Signals["recent_actions"])
	}
	if !fact.HasIntent("export") || !fact.HasIntent("billing") {
		t.Errorf("list elements should derive clean intents, got %v", fact.Intents)
	}
	for _, intent := range fact.Intents {
		if intent[0] == '[' || intent[len(intent)-1] == ']' {
			t.Errorf("intent %q carries list rendering artifacts", intent)
		}
	}
	if fact.Signals["custom_list"] != "alpha beta" {
		t.Errorf("string list should flatten too, got %q", fact.Signals["custom_list"])
	}
}

func TestNormalize_QuotedPhraseIsOneIntent(t *testing.T) {
	fact, err := Normalize(Submission{
		UserID:  "u1",
		Ts:      100,
		Signals: map[string]any{"query": `"export report" billing`},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !fact.HasIntent("export report") {
		t.Errorf("quoted phrase should be a single intent, got %v", fact.Intents)
	}
	if !fact.HasIntent("billing") {
		t.Errorf("missing billing intent: %v", fact.Intents)
	}
}

func TestFreeText_Deterministic(t *testing.T) {
	fact := &ContextFact{Signals: map[string]string{
		"b": "second",
		"a": "first",
	}}
	if got := fact.FreeText(); got != "first second" {
		t.Errorf("free text should join values in key order, got %q", got)
	}
}

func TestWindow_EvictsOldest(t *testing.T) {
	w := NewWindow(3)
	for ts := int64(1); ts <= 5; ts++ {
		w.Push(&ContextFact{UserID: "u1", Ts: ts})
	}

	if n := w.Len("u1"); n != 3 {
		t.Fatalf("expected window of 3, got %d", n)
	}
	if latest := w.Latest("u1"); latest.Ts != 5 {
		t.Errorf("expected latest ts 5, got %d", latest.Ts)
	}

	recent := w.Recent("u1", 0)
	got := make([]int64, len(recent))
	for i, f := range recent {
		got[i] = f.Ts
	}
	if !reflect.DeepEqual(got, []int64{5, 4, 3}) {
		t.Errorf("expected newest-first {5,4,3}, got %v", got)
	}
}

func TestWindow_UsersAreIndependent(t *testing.T) {
	w := NewWindow(2)
	w.Push(&ContextFact{UserID: "u1", Ts: 1})
	w.Push(&ContextFact{UserID: "u2", Ts: 2})

	if w.Len("u1") != 1 || w.Len("u2") != 1 {
		t.Errorf("windows leaked across users: u1=%d u2=%d", w.Len("u1"), w.Len("u2"))
	}
	if w.Latest("u3") != nil {
		t.Error("unknown user should have no latest fact")
	}
}
