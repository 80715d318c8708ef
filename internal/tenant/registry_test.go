package tenant

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeProfile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func loadTestRegistry(t *testing.T) *Registry {
	t.Helper()
	dir := t.TempDir()
	writeProfile(t, dir, "acme.json", `{
		"id": "acme",
		"name": "Acme Corp",
		"persona": "You are the Acme support assistant.",
		"voice_id": "v-acme",
		"keywords": ["Acme", "RoadRunner 3000"],
		"facts": {"hours": "9-17 CET"},
		"aliases": ["acme-corp", "acme-legacy"]
	}`)
	writeProfile(t, dir, "default.json", `{
		"id": "default",
		"persona": "You are a helpful voice assistant."
	}`)

	r, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return r
}

func TestRegistry_ResolveCanonicalAndAlias(t *testing.T) {
	r := loadTestRegistry(t)

	for _, id := range []string{"acme", "acme-corp", "acme-legacy"} {
		p, err := r.Resolve(id)
		if err != nil {
			t.Fatalf("resolve %q: %v", id, err)
		}
		if p.ID != "acme" || p.VoiceID != "v-acme" {
			t.Errorf("resolve %q: got %+v", id, p)
		}
	}
}

func TestRegistry_UnknownFallsBackToDefault(t *testing.T) {
	r := loadTestRegistry(t)
	p, err := r.Resolve("no-such-tenant")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if p.ID != "default" {
		t.Errorf("fallback: got %q, want default", p.ID)
	}
}

func TestRegistry_NoDefaultErrors(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "acme.json", `{"id": "acme", "persona": "p"}`)
	r, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := r.Resolve("ghost"); err == nil {
		t.Error("unknown tenant without default should error")
	}
}

func TestRegistry_BrokenFileSkipped(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "good.json", `{"id": "good", "persona": "p"}`)
	writeProfile(t, dir, "bad.json", `{not json`)
	r, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := r.Resolve("good"); err != nil {
		t.Errorf("good profile lost: %v", err)
	}
	if ids := r.IDs(); len(ids) != 1 {
		t.Errorf("loaded IDs: %v", ids)
	}
}

func TestRegistry_IDFromFilename(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "globex.json", `{"persona": "p"}`)
	r, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := r.Resolve("globex"); err != nil {
		t.Errorf("filename-derived ID not resolvable: %v", err)
	}
}

func TestProfile_SystemPrompt(t *testing.T) {
	p := &Profile{
		Persona: "You are the Acme assistant.",
		Facts:   map[string]string{"hours": "9-17", "city": "Berlin"},
	}
	got := p.SystemPrompt("Ada", "prefers short answers")

	if !strings.HasPrefix(got, "You are the Acme assistant.") {
		t.Errorf("persona not first: %q", got)
	}
	// Facts are sorted by key: city before hours.
	if strings.Index(got, "city") > strings.Index(got, "hours") {
		t.Error("facts not in sorted order")
	}
	for _, want := range []string{"Ada", "prefers short answers"} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q:\n%s", want, got)
		}
	}

	bare := (&Profile{Persona: "P"}).SystemPrompt("", "")
	if bare != "P" {
		t.Errorf("bare prompt: %q", bare)
	}
}
