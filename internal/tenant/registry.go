// Package tenant loads and serves per-tenant assistant profiles: the
// persona prompt, voice selection, vocabulary keywords and knowledge-base
// facts that shape how the assistant answers for one customer.
//
// Profiles are JSON files in a directory, one per tenant, named
// <tenant_id>.json. A profile may declare aliases, alternative IDs that
// resolve to it, so a rebranded tenant keeps working under its old session
// URLs. Unknown tenant IDs fall back to the "default" profile when one
// exists.
package tenant

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bytedance/sonic"
)

// DefaultID is the tenant ID used as the fallback profile.
const DefaultID = "default"

// ErrNotFound is returned by Resolve when neither the tenant nor a default
// profile exists.
var ErrNotFound = errors.New("tenant: profile not found")

// Profile is one tenant's assistant configuration.
type Profile struct {
	// ID is the canonical tenant identifier.
	ID string `json:"id"`

	// Name is the human-readable tenant name.
	Name string `json:"name"`

	// Persona is the system prompt describing the assistant's role and
	// tone for this tenant.
	Persona string `json:"persona"`

	// Greeting is spoken when a session opens, when non-empty.
	Greeting string `json:"greeting"`

	// VoiceID selects the synthesis voice.
	VoiceID string `json:"voice_id"`

	// Language is the ISO 639-1 transcription language hint.
	Language string `json:"language"`

	// Keywords is the tenant vocabulary used for recognition hints and
	// transcript correction.
	Keywords []string `json:"keywords"`

	// Facts is the knowledge base injected into the system prompt.
	Facts map[string]string `json:"facts"`

	// Aliases are alternative tenant IDs that resolve to this profile.
	Aliases []string `json:"aliases"`
}

// Registry holds the loaded tenant profiles. It is read-only after Load;
// Reload swaps the whole set atomically.
type Registry struct {
	dir string

	mu       sync.RWMutex
	profiles map[string]*Profile
	aliases  map[string]string
}

// Load reads every *.json profile in dir. Files that fail to parse are
// skipped with a warning so one broken tenant cannot take down the rest.
func Load(dir string) (*Registry, error) {
	r := &Registry{dir: dir}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-reads the profile directory and atomically replaces the loaded
// set.
func (r *Registry) Reload() error {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return fmt.Errorf("tenant: read profile dir %q: %w", r.dir, err)
	}

	profiles := make(map[string]*Profile)
	aliases := make(map[string]string)

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(r.dir, entry.Name())
		p, err := readProfile(path)
		if err != nil {
			slog.Warn("skipping unreadable tenant profile", "path", path, "err", err)
			continue
		}
		if p.ID == "" {
			p.ID = strings.TrimSuffix(entry.Name(), ".json")
		}
		if _, dup := profiles[p.ID]; dup {
			slog.Warn("duplicate tenant profile ID", "tenant_id", p.ID, "path", path)
			continue
		}
		profiles[p.ID] = p
		for _, alias := range p.Aliases {
			if alias == "" || alias == p.ID {
				continue
			}
			if prev, dup := aliases[alias]; dup {
				slog.Warn("duplicate tenant alias", "alias", alias, "kept", prev, "dropped", p.ID)
				continue
			}
			aliases[alias] = p.ID
		}
	}

	if len(profiles) == 0 {
		return fmt.Errorf("tenant: no profiles found in %q", r.dir)
	}

	r.mu.Lock()
	r.profiles = profiles
	r.aliases = aliases
	r.mu.Unlock()

	slog.Info("tenant profiles loaded", "count", len(profiles), "aliases", len(aliases))
	return nil
}

// Resolve returns the profile for id, following aliases. An unknown ID
// falls back to the default profile; ErrNotFound means not even a default
// exists.
func (r *Registry) Resolve(id string) (*Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if canonical, ok := r.aliases[id]; ok {
		id = canonical
	}
	if p, ok := r.profiles[id]; ok {
		return p, nil
	}
	if p, ok := r.profiles[DefaultID]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
}

// IDs returns the canonical tenant IDs currently loaded.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.profiles))
	for id := range r.profiles {
		ids = append(ids, id)
	}
	return ids
}

func readProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var p Profile
	if err := sonic.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	return &p, nil
}
