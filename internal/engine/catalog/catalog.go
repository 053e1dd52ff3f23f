// Package catalog holds the set of discoverable features and their static
// metadata. Features are immutable once loaded; catalog management happens
// outside the engine.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// Catalog errors.
var (
	ErrFeatureNotFound = errors.New("feature not found in catalog")
	ErrCatalogInvalid  = errors.New("catalog invalid")
)

// Complexity tier bounds.
const (
	MinComplexity = 1
	MaxComplexity = 5
)

// Feature describes one discoverable product feature.
type Feature struct {
	// ID uniquely identifies the feature.
	ID string `yaml:"id"`

	// Name is the display name.
	Name string `yaml:"name"`

	// Description is free text used by the semantic-similarity component.
	Description string `yaml:"description"`

	// Category groups features for the diversity cap.
	Category string `yaml:"category"`

	// Tags are lowercase match tokens intersected with context intents.
	Tags []string `yaml:"tags"`

	// Prerequisites lists feature IDs that should be tried first.
	Prerequisites []string `yaml:"prerequisites,omitempty"`

	// Complexity is the tier 1 (simple) to 5 (advanced). Used as the
	// primary tie-breaker in ranking.
	Complexity int `yaml:"complexity"`

	// Automatable marks features that an automation runner can execute.
	Automatable bool `yaml:"automatable,omitempty"`
}

// TagSet returns the feature's tags as a set.
func (f *Feature) TagSet() map[string]bool {
	set := make(map[string]bool, len(f.Tags))
	for _, t := range f.Tags {
		set[t] = true
	}
	return set
}

// Provider supplies the feature catalog to the engine.
type Provider interface {
	// ListFeatures returns all features. The returned slice must not be
	// mutated by callers.
	ListFeatures() []Feature

	// Get returns the feature with the given ID, or ErrFeatureNotFound.
	Get(id string) (Feature, error)
}

// Static is an in-memory Provider backed by a fixed feature list.
// It is safe for concurrent use; Replace swaps the list atomically.
type Static struct {
	mu       sync.RWMutex
	features []Feature
	byID     map[string]int
}

// NewStatic creates a Static catalog from the given features.
// The features are validated; an invalid set is rejected.
func NewStatic(features []Feature) (*Static, error) {
	if err := Validate(features); err != nil {
		return nil, err
	}
	s := &Static{}
	s.replaceLocked(features)
	return s, nil
}

// LoadFile reads a YAML catalog file and returns a Static catalog.
// The file is either a bare list of features or an object with a
// "features" key.
func LoadFile(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	features, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return NewStatic(features)
}

// Parse parses YAML catalog data.
func Parse(data []byte) ([]Feature, error) {
	// Try parsing as a bare list first (common format).
	var features []Feature
	if err := yaml.Unmarshal(data, &features); err == nil && len(features) > 0 {
		return features, nil
	}

	var wrapper struct {
		Features []Feature `yaml:"features"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, fmt.Errorf("%w: failed to parse YAML: %w", ErrCatalogInvalid, err)
	}
	return wrapper.Features, nil
}

// Validate checks catalog integrity: unique non-empty IDs, complexity in
// range, prerequisites referencing known features, and no prerequisite
// cycles.
func Validate(features []Feature) error {
	ids := make(map[string]bool, len(features))
	for i, f := range features {
		if f.ID == "" {
			return fmt.Errorf("%w: feature %d: id is required", ErrCatalogInvalid, i)
		}
		if ids[f.ID] {
			return fmt.Errorf("%w: duplicate feature id %q", ErrCatalogInvalid, f.ID)
		}
		ids[f.ID] = true
		if f.Name == "" {
			return fmt.Errorf("%w: feature %q: name is required", ErrCatalogInvalid, f.ID)
		}
		if f.Complexity < MinComplexity || f.Complexity > MaxComplexity {
			return fmt.Errorf("%w: feature %q: complexity %d out of range [%d,%d]",
				ErrCatalogInvalid, f.ID, f.Complexity, MinComplexity, MaxComplexity)
		}
	}

	prereqs := make(map[string][]string, len(features))
	for _, f := range features {
		for _, p := range f.Prerequisites {
			if !ids[p] {
				return fmt.Errorf("%w: feature %q: unknown prerequisite %q", ErrCatalogInvalid, f.ID, p)
			}
			if p == f.ID {
				return fmt.Errorf("%w: feature %q: self prerequisite", ErrCatalogInvalid, f.ID)
			}
		}
		prereqs[f.ID] = f.Prerequisites
	}

	if cyc := findCycle(prereqs); cyc != "" {
		return fmt.Errorf("%w: prerequisite cycle involving %q", ErrCatalogInvalid, cyc)
	}
	return nil
}

// findCycle returns a feature ID on a prerequisite cycle, or "".
func findCycle(prereqs map[string][]string) string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(prereqs))

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		for _, p := range prereqs[id] {
			switch color[p] {
			case gray:
				return true
			case white:
				if visit(p) {
					return true
				}
			}
		}
		color[id] = black
		return false
	}

	// Deterministic iteration keeps error messages stable.
	ids := make([]string, 0, len(prereqs))
	for id := range prereqs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if color[id] == white && visit(id) {
			return id
		}
	}
	return ""
}

// ListFeatures implements Provider.
func (s *Static) ListFeatures() []Feature {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.features
}

// Get implements Provider.
func (s *Static) Get(id string) (Feature, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.byID[id]
	if !ok {
		return Feature{}, fmt.Errorf("%w: %q", ErrFeatureNotFound, id)
	}
	return s.features[idx], nil
}

// Len returns the number of features in the catalog.
func (s *Static) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.features)
}

// Replace atomically swaps the catalog contents after validating them.
// Used for hot-reload.
func (s *Static) Replace(features []Feature) error {
	if err := Validate(features); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replaceLocked(features)
	return nil
}

func (s *Static) replaceLocked(features []Feature) {
	cp := make([]Feature, len(features))
	copy(cp, features)
	byID := make(map[string]int, len(cp))
	for i, f := range cp {
		byID[f.ID] = i
	}
	s.features = cp
	s.byID = byID
}
