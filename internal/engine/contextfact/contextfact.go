// Package contextfact normalizes raw context submissions into structured
// context facts and maintains the per-user rolling window of recent facts.
//
// A raw submission carries a reserved core schema (user id, timestamp) that
// is validated strictly, plus an open-ended signal map that is retained
// as-is: unknown signal names are kept as opaque key/value pairs rather
// than rejected.
package contextfact

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/shlex"
	"github.com/google/uuid"
)

// Reserved signal names with intent-bearing values. Other signals are kept
// but do not contribute intents.
const (
	SignalScreen        = "screen"
	SignalRecentActions = "recent_actions"
	SignalActiveEntity  = "active_entity"
	SignalQuery         = "query"
)

// ValidationError reports a malformed context submission. Submissions that
// fail validation are rejected with no side effects.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid context submission: %s: %s", e.Field, e.Reason)
}

// Submission is a raw client-supplied context payload.
type Submission struct {
	UserID  string         `json:"user_id"`
	Ts      int64          `json:"ts"`
	Signals map[string]any `json:"signals"`
}

// ContextFact is the normalized snapshot of what the user is doing.
// Facts are immutable once created.
type ContextFact struct {
	ID      string
	UserID  string
	Ts      int64
	Signals map[string]string
	Intents []string
}

// FreeText joins the fact's signal values into a single text blob for the
// semantic-similarity collaborator.
func (f *ContextFact) FreeText() string {
	keys := make([]string, 0, len(f.Signals))
	for k := range f.Signals {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(f.Signals[k])
	}
	return b.String()
}

// HasIntent returns true if the fact carries the given intent.
func (f *ContextFact) HasIntent(intent string) bool {
	for _, i := range f.Intents {
		if i == intent {
			return true
		}
	}
	return false
}

// Normalize validates a submission and converts it into a ContextFact.
// List-valued signals are flattened element-wise; other non-string shapes
// are rendered with fmt.Sprint so arbitrary client payloads survive as
// opaque strings.
func Normalize(sub Submission) (*ContextFact, error) {
	if sub.UserID == "" {
		return nil, &ValidationError{Field: "user_id", Reason: "required"}
	}
	if sub.Ts <= 0 {
		return nil, &ValidationError{Field: "ts", Reason: "required and must be positive"}
	}

	signals := make(map[string]string, len(sub.Signals))
	for name, value := range sub.Signals {
		if name == "" {
			continue
		}
		signals[name] = renderSignal(value)
	}

	fact := &ContextFact{
		ID:      uuid.NewString(),
		UserID:  sub.UserID,
		Ts:      sub.Ts,
		Signals: signals,
		Intents: deriveIntents(signals),
	}
	return fact, nil
}

// renderSignal flattens a raw signal value into text. Lists are joined
// element-wise so array-shaped signals (recent actions) tokenize cleanly
// instead of carrying fmt.Sprint's bracket syntax into intent derivation.
func renderSignal(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case []string:
		return strings.Join(v, " ")
	case []any:
		parts := make([]string, 0, len(v))
		for _, e := range v {
			parts = append(parts, renderSignal(e))
		}
		return strings.Join(parts, " ")
	}
	return fmt.Sprint(value)
}

// deriveIntents extracts lowercase intent tokens from the intent-bearing
// signals. Tokenization is quote-aware: a quoted phrase in a free-text
// signal becomes a single intent ("export report").
func deriveIntents(signals map[string]string) []string {
	seen := make(map[string]bool)
	var intents []string

	add := func(tok string) {
		tok = strings.ToLower(strings.TrimSpace(tok))
		tok = strings.Trim(tok, ".,;:!?\"'")
		if len(tok) < 2 || seen[tok] {
			return
		}
		seen[tok] = true
		intents = append(intents, tok)
	}

	for _, name := range []string{SignalScreen, SignalRecentActions, SignalActiveEntity, SignalQuery} {
		value, ok := signals[name]
		if !ok || value == "" {
			continue
		}
		tokens, err := shlex.Split(value)
		if err != nil {
			// Unbalanced quotes; fall back to whitespace splitting.
			tokens = strings.Fields(value)
		}
		for _, tok := range tokens {
			add(tok)
		}
	}

	sort.Strings(intents)
	return intents
}
