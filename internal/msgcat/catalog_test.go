package msgcat

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEmbeddedDefaults(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := c.Render("match.search_timeout", nil)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got != "Could not find a match. Please try again." {
		t.Fatalf("unexpected text %q", got)
	}
	got, err = c.Render("match.invalid_format", map[string]any{"Format": "3v3"})
	if err != nil || got != "Unknown duel format 3v3. Choose 1v1 or 2v2." {
		t.Fatalf("Render invalid_format: %q %v", got, err)
	}
}

func TestMissingDataIsError(t *testing.T) {
	c, _ := New("")
	if _, err := c.Render("match.invalid_format", map[string]any{}); err == nil {
		t.Fatalf("expected missing key error")
	}
	if got := c.Text("no.such.key", nil); got != "Something went wrong. Please try again." {
		t.Fatalf("fallback = %q", got)
	}
}

func TestOverrideDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("match:\n  cancelled: \"Stopped.\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := c.Text("match.cancelled", nil); got != "Stopped." {
		t.Fatalf("override not applied: %q", got)
	}

	if err := os.WriteFile(filepath.Join(dir, "b.yml"), []byte("match:\n  cancelled: \"Again.\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := New(dir); err == nil {
		t.Fatalf("expected duplicate key error")
	}
}
