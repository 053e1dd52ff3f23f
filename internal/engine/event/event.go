// Package event defines the interaction event types consumed by the
// discovery engine. Events are append-only and immutable once written.
package event

// Kind is the interaction event kind.
type Kind string

const (
	KindViewed              Kind = "viewed"
	KindRecommended         Kind = "recommended"
	KindDismissed           Kind = "dismissed"
	KindTried               Kind = "tried"
	KindAdopted             Kind = "adopted"
	KindTutorialRequested   Kind = "tutorial-requested"
	KindAutomationRequested Kind = "automation-requested"
)

// ValidKind returns true if k is a recognized event kind.
func ValidKind(k string) bool {
	switch Kind(k) {
	case KindViewed, KindRecommended, KindDismissed, KindTried, KindAdopted,
		KindTutorialRequested, KindAutomationRequested:
		return true
	default:
		return false
	}
}

// Informational returns true for event kinds that are passed through for
// analytics but never change the lifecycle stage.
func (k Kind) Informational() bool {
	return k == KindTutorialRequested || k == KindAutomationRequested
}

// InteractionEvent records one user-feature interaction.
type InteractionEvent struct {
	// UserID identifies the user.
	UserID string `json:"user_id"`

	// FeatureID identifies the feature.
	FeatureID string `json:"feature_id"`

	// Kind is the event kind.
	Kind Kind `json:"kind"`

	// Ts is the event timestamp in Unix milliseconds.
	Ts int64 `json:"ts"`
}
