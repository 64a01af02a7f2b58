// Package persona manages named conversational identities.
package persona

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/duetlabs/persona-duet/internal/model"
)

// ErrInsufficientPersonas is returned by RandomPair when fewer than two
// entries exist.
var ErrInsufficientPersonas = errors.New("at least two personas are required")

// Registry maps case-insensitive keys to persona configurations. Safe for
// concurrent reads after setup; this program only mutates it at startup.
type Registry struct {
	entries map[string]model.PersonaConfig
	keys    []string // insertion order of normalized keys
	rng     *rand.Rand
}

// NewRegistry creates an empty registry. A nil rng falls back to a
// time-seeded source; tests inject a fixed seed.
func NewRegistry(rng *rand.Rand) *Registry {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Registry{
		entries: make(map[string]model.PersonaConfig),
		rng:     rng,
	}
}

// NewDefaultRegistry returns a registry seeded with the built-in personas.
func NewDefaultRegistry(rng *rand.Rand) *Registry {
	r := NewRegistry(rng)
	for key, cfg := range defaultPersonas {
		r.Add(key, cfg)
	}
	sort.Strings(r.keys)
	return r
}

// Add stores a persona under the normalized key, overwriting any existing
// entry.
func (r *Registry) Add(key string, cfg model.PersonaConfig) {
	k := normalize(key)
	if _, exists := r.entries[k]; !exists {
		r.keys = append(r.keys, k)
	}
	r.entries[k] = cfg
}

// Remove deletes the entry at key. Returns true if one existed.
func (r *Registry) Remove(key string) bool {
	k := normalize(key)
	if _, exists := r.entries[k]; !exists {
		return false
	}
	delete(r.entries, k)
	for i, existing := range r.keys {
		if existing == k {
			r.keys = append(r.keys[:i], r.keys[i+1:]...)
			break
		}
	}
	return true
}

// LookupByKey finds a persona by its case-insensitive key.
func (r *Registry) LookupByKey(key string) (model.PersonaConfig, bool) {
	cfg, ok := r.entries[normalize(key)]
	return cfg, ok
}

// LookupByDisplayName finds the first persona whose display name matches
// case-insensitively. Duplicate display names are allowed; first added wins.
func (r *Registry) LookupByDisplayName(name string) (model.PersonaConfig, bool) {
	want := normalize(name)
	for _, k := range r.keys {
		if normalize(r.entries[k].DisplayName) == want {
			return r.entries[k], true
		}
	}
	return model.PersonaConfig{}, false
}

// Keys returns the registered keys in insertion order.
func (r *Registry) Keys() []string {
	return append([]string(nil), r.keys...)
}

// All returns independent copies of every persona, in insertion order.
func (r *Registry) All() []model.PersonaConfig {
	out := make([]model.PersonaConfig, 0, len(r.keys))
	for _, k := range r.keys {
		cfg := r.entries[k]
		cfg.Interests = append([]string(nil), cfg.Interests...)
		out = append(out, cfg)
	}
	return out
}

// DisplayNames returns every display name; duplicates are not collapsed.
func (r *Registry) DisplayNames() []string {
	out := make([]string, 0, len(r.keys))
	for _, k := range r.keys {
		out = append(out, r.entries[k].DisplayName)
	}
	return out
}

// Len reports the number of registered personas.
func (r *Registry) Len() int {
	return len(r.entries)
}

// RandomPair uniformly selects two distinct registry slots. Entries with
// identical display names still count as distinct.
func (r *Registry) RandomPair() (model.PersonaConfig, model.PersonaConfig, error) {
	if len(r.keys) < 2 {
		return model.PersonaConfig{}, model.PersonaConfig{}, ErrInsufficientPersonas
	}
	i := r.rng.Intn(len(r.keys))
	j := r.rng.Intn(len(r.keys) - 1)
	if j >= i {
		j++
	}
	return r.entries[r.keys[i]], r.entries[r.keys[j]], nil
}

// Validate reports human-readable violations for a persona config. An empty
// result means valid. Whitespace-only strings count as empty. Never errors.
func Validate(cfg model.PersonaConfig) []string {
	var violations []string
	if strings.TrimSpace(cfg.DisplayName) == "" {
		violations = append(violations, "display name must not be empty")
	}
	if strings.TrimSpace(cfg.Personality) == "" {
		violations = append(violations, "personality must not be empty")
	}
	if strings.TrimSpace(cfg.SpeakingStyle) == "" {
		violations = append(violations, "speaking style must not be empty")
	}
	if len(cfg.Interests) == 0 {
		violations = append(violations, "at least one interest is required")
	}
	return violations
}

// LoadFile merges personas from a YAML file into the registry, overwriting
// entries with matching keys.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read persona file: %w", err)
	}
	var parsed map[string]model.PersonaConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parse persona file %s: %w", path, err)
	}
	keys := make([]string, 0, len(parsed))
	for k := range parsed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		r.Add(k, parsed[k])
	}
	return nil
}

func normalize(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
