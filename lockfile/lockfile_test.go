package lockfile

import (
	"os"
	"path/filepath"
	"testing"
)

func TestHashDeterministic(t *testing.T) {
	if Hash("hello world") != Hash("hello world") {
		t.Error("Hash not deterministic")
	}
	if Hash("hello world") == Hash("different") {
		t.Error("Hash collision")
	}
}

func TestLoadNonExistent(t *testing.T) {
	dir := t.TempDir()
	lf, err := Load(dir)
	if err != nil {
		t.Fatalf("Load returned error for non-existent file: %v", err)
	}
	if lf.Version != Version || len(lf.Checksums) != 0 {
		t.Fatalf("unexpected lock: %+v", lf)
	}
	if lf.Path() != filepath.Join(dir, LockFileName) {
		t.Errorf("Path = %s", lf.Path())
	}
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	lf := New(dir)
	lf.Record("de", "app.title", "My App")
	lf.Record("fr", "app.title", "My App")
	if err := lf.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, LockFileName)); err != nil {
		t.Fatalf("lock file not written: %v", err)
	}

	back, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !back.Known("de", "app.title") || back.IsStale("fr", "app.title", "My App") {
		t.Fatalf("round trip lost data: %+v", back.Checksums)
	}
}

func TestLoadCorrupt(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, LockFileName), []byte("checksums: [\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatal("expected parse error")
	}
}

// ---------------------------------------------------------------------------
// Staleness
// ---------------------------------------------------------------------------

func TestIsStale(t *testing.T) {
	lf := New(t.TempDir())

	if lf.IsStale("de", "k", "Hello") {
		t.Error("unrecorded entry must not be stale")
	}

	lf.Record("de", "k", "Hello")
	if lf.IsStale("de", "k", "Hello") {
		t.Error("same source must not be stale")
	}
	if !lf.IsStale("de", "k", "Hello!") {
		t.Error("changed source must be stale")
	}
	if lf.IsStale("fr", "k", "Hello!") {
		t.Error("staleness is per language")
	}
}

func TestPrune(t *testing.T) {
	lf := New(t.TempDir())
	lf.Record("de", "a", "A")
	lf.Record("de", "b", "B")
	lf.Record("fr", "a", "A")

	if n := lf.Prune("de", []string{"a"}); n != 1 {
		t.Fatalf("Prune removed %d, want 1", n)
	}
	if lf.Known("de", "b") || !lf.Known("de", "a") {
		t.Fatalf("checksums = %v", lf.Checksums)
	}

	lf.Prune("fr", nil)
	if langs := lf.Languages(); len(langs) != 1 || langs[0] != "de" {
		t.Fatalf("Languages = %v", langs)
	}
}

func TestSummary(t *testing.T) {
	lf := New(t.TempDir())
	if lf.Summary() != "empty" {
		t.Fatalf("Summary = %q", lf.Summary())
	}
	lf.Record("fr", "a", "A")
	lf.Record("de", "a", "A")
	lf.Record("de", "b", "B")
	if got := lf.Summary(); got != "2 languages, 3 keys (de: 2, fr: 1)" {
		t.Fatalf("Summary = %q", got)
	}

	lf.RemoveLanguage("de")
	if l, k := lf.Stats(); l != 1 || k != 1 {
		t.Fatalf("Stats = %d, %d", l, k)
	}
}
