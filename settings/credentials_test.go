package settings

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPathsUseXDGDataHome(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("XDG_DATA_HOME", tmp)

	dir, err := DataDir()
	if err != nil || dir != filepath.Join(tmp, "lokat") {
		t.Fatalf("DataDir() = %q, %v", dir, err)
	}
	if p, _ := AuthPath(); p != filepath.Join(tmp, "lokat", "auth.json") {
		t.Fatalf("AuthPath() = %q", p)
	}
	if p, _ := UsagePath(); p != filepath.Join(tmp, "lokat", "usage.json") {
		t.Fatalf("UsagePath() = %q", p)
	}
}

func TestSaveLoadRemove(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("XDG_DATA_HOME", tmp)

	if err := SetAPIKey("openai", "sk-1234567890", ""); err != nil {
		t.Fatalf("SetAPIKey: %v", err)
	}
	if err := SetAPIKey("custom-openai", "key", "http://localhost:8080/v1"); err != nil {
		t.Fatalf("SetAPIKey: %v", err)
	}

	info, err := os.Stat(filepath.Join(tmp, "lokat", "auth.json"))
	if err != nil {
		t.Fatalf("stat auth.json: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Fatalf("auth.json mode = %o, want 600", info.Mode().Perm())
	}

	if c := Get("custom-openai"); c == nil || c.BaseURL != "http://localhost:8080/v1" {
		t.Fatalf("Get = %+v", c)
	}

	if err := Remove("openai"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if Get("openai") != nil {
		t.Fatal("openai credential should be gone")
	}
	if err := Remove("missing"); err != nil {
		t.Fatalf("Remove missing: %v", err)
	}
}

func TestLoad_Corrupt(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("XDG_DATA_HOME", tmp)

	path := filepath.Join(tmp, "lokat", "auth.json")
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("{nope"), 0600); err != nil {
		t.Fatal(err)
	}
	if store := Load(); len(store) != 0 {
		t.Fatalf("corrupt store = %v", store)
	}
}

func TestResolveAPIKey(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	t.Setenv(EnvAPIKey, "")

	if got := ResolveAPIKey("", "groq"); got != "" {
		t.Fatalf("empty lookup = %q", got)
	}

	if err := SetAPIKey("groq", "stored", ""); err != nil {
		t.Fatal(err)
	}
	if got := ResolveAPIKey("", "groq"); got != "stored" {
		t.Fatalf("store lookup = %q", got)
	}

	t.Setenv(EnvAPIKey, "from-env")
	if got := ResolveAPIKey("", "groq"); got != "from-env" {
		t.Fatalf("env lookup = %q", got)
	}
	if got := ResolveAPIKey("from-flag", "groq"); got != "from-flag" {
		t.Fatalf("flag lookup = %q", got)
	}
}

func TestMaskKey(t *testing.T) {
	if MaskKey("short") != "****" {
		t.Fatal("short keys are fully masked")
	}
	if got := MaskKey("sk-abcdefgh1234"); got != "sk-a...1234" {
		t.Fatalf("MaskKey = %q", got)
	}
}
