package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

// ---------------------------------------------------------------------------
// Directory resolution
// ---------------------------------------------------------------------------

func TestResolveDirectory_Configured(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "i18n", "msgs", "en.json"), `{}`)

	s := &Store{Root: root, Dir: "i18n/msgs"}
	dir, ok := s.ResolveDirectory()
	if !ok || dir != filepath.Join(root, "i18n", "msgs") {
		t.Fatalf("ResolveDirectory = %q, %v", dir, ok)
	}

	abs := &Store{Dir: filepath.Join(root, "i18n")}
	dir, ok = abs.ResolveDirectory()
	if !ok || dir != filepath.Join(root, "i18n") {
		t.Fatalf("absolute ResolveDirectory = %q, %v", dir, ok)
	}
}

func TestResolveDirectory_Search(t *testing.T) {
	root := t.TempDir()
	// Skipped locations must never win.
	writeFile(t, filepath.Join(root, "node_modules", "pkg", "locales", "en.json"), `{}`)
	writeFile(t, filepath.Join(root, ".cache", "locales", "en.json"), `{}`)
	writeFile(t, filepath.Join(root, "web", "src", "Locales", "en.json"), `{}`)

	s := &Store{Root: root}
	dir, ok := s.ResolveDirectory()
	want := filepath.Join(root, "web", "src", "Locales")
	if !ok || dir != want {
		t.Fatalf("ResolveDirectory = %q, %v; want %q", dir, ok, want)
	}
}

func TestResolveDirectory_DepthLimit(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a", "b", "c", "d", "locales", "en.json"), `{}`)

	s := &Store{Root: root}
	if dir, ok := s.ResolveDirectory(); ok {
		t.Fatalf("found %q beyond the depth limit", dir)
	}

	writeFile(t, filepath.Join(root, "a", "b", "c", "locales", "en.json"), `{}`)
	if _, ok := s.ResolveDirectory(); !ok {
		t.Fatal("directory at depth 4 should be found")
	}
}

// ---------------------------------------------------------------------------
// Load
// ---------------------------------------------------------------------------

func TestLoad_Statuses(t *testing.T) {
	s := &Store{}
	cat, err := s.Load()
	if err != nil || cat.Status.Code != StatusNoProjectRoot {
		t.Fatalf("no root: status=%v err=%v", cat.Status, err)
	}

	root := t.TempDir()
	s = &Store{Root: root}
	cat, err = s.Load()
	if err != nil || cat.Status.Code != StatusDirectoryMissing {
		t.Fatalf("missing dir: status=%v err=%v", cat.Status, err)
	}
	if cat.Keys == nil || cat.Languages == nil || cat.Values == nil {
		t.Fatal("empty catalog shape should have non-nil collections")
	}

	if err := os.MkdirAll(filepath.Join(root, "locales"), 0755); err != nil {
		t.Fatal(err)
	}
	cat, err = s.Load()
	if err != nil || cat.Status.Code != StatusNoLanguageFiles {
		t.Fatalf("no files: status=%v err=%v", cat.Status, err)
	}
}

func TestLoad_DenseTable(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "locales")
	writeFile(t, filepath.Join(dir, "en.json"), `{"app": {"title": "Title", "greeting": "Hello"}, "n": 3}`)
	writeFile(t, filepath.Join(dir, "de.json"), `{"app": {"title": "Titel"}, "extra": "Nur"}`)
	writeFile(t, filepath.Join(dir, "ru.json"), `{broken`)
	writeFile(t, filepath.Join(dir, "notes.txt"), `ignored`)

	s := &Store{Root: root, SourceLanguage: "en"}
	cat, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cat.Status.OK() {
		t.Fatalf("status = %v", cat.Status)
	}

	if got := cat.LanguageCodes(); !reflect.DeepEqual(got, []string{"en", "ru", "de"}) {
		t.Fatalf("languages = %v", got)
	}

	var ids []string
	for _, k := range cat.Keys {
		ids = append(ids, k.ID)
	}
	if !reflect.DeepEqual(ids, []string{"app.greeting", "app.title", "extra"}) {
		t.Fatalf("keys = %v", ids)
	}

	for _, k := range cat.Keys {
		for _, l := range cat.Languages {
			if _, ok := cat.Values[k.ID][l.Code]; !ok {
				t.Errorf("values[%s][%s] missing", k.ID, l.Code)
			}
		}
	}

	if cat.Value("app.title", "de") != "Titel" || cat.Value("extra", "en") != "" {
		t.Fatalf("unexpected values: %#v", cat.Values)
	}
	if !cat.Keys[0].HasTag(TagUntranslated) {
		t.Fatal("app.greeting should be tagged untranslated")
	}
	if cat.SourceLanguage != "en" {
		t.Fatalf("source = %q", cat.SourceLanguage)
	}

	total, translated, untranslated := cat.Stats("de")
	if total != 3 || translated != 2 || untranslated != 1 {
		t.Fatalf("Stats(de) = %d %d %d", total, translated, untranslated)
	}
}

func TestLoad_SourceFallback(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "locales", "fr.json"), `{"a": "b"}`)
	writeFile(t, filepath.Join(root, "locales", "ru.json"), `{"a": "c"}`)

	s := &Store{Root: root, SourceLanguage: "en"}
	cat, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if cat.SourceLanguage != "fr" {
		t.Fatalf("source = %q, want first language fr", cat.SourceLanguage)
	}
}

// ---------------------------------------------------------------------------
// Writes
// ---------------------------------------------------------------------------

func TestWriteCell(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "locales", "en.json")
	writeFile(t, path, `{"b": "B", "a": "A"}`)

	s := &Store{Root: root}
	if err := s.WriteCell("en", "b", "BB"); err != nil {
		t.Fatalf("WriteCell: %v", err)
	}
	want := "{\n  \"b\": \"BB\",\n  \"a\": \"A\"\n}\n"
	if got := readFile(t, path); got != want {
		t.Fatalf("file = %q, want %q", got, want)
	}

	// Corrupt files are replaced rather than failing the write.
	writeFile(t, path, `{oops`)
	if err := s.WriteCell("en", "x", "1"); err != nil {
		t.Fatalf("WriteCell corrupt: %v", err)
	}
	if got := readFile(t, path); got != "{\n  \"x\": \"1\"\n}\n" {
		t.Fatalf("file = %q", got)
	}
}

func TestAddKey(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "locales")
	writeFile(t, filepath.Join(dir, "en.json"), "{}\n")

	s := &Store{Root: root}
	existed, err := s.AddKey("x.y", "en", "Hi")
	if err != nil || existed {
		t.Fatalf("AddKey = %v, %v", existed, err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only en.json, got %d files", len(entries))
	}

	want := "{\n  \"x\": {\n    \"y\": \"Hi\"\n  }\n}\n"
	if got := readFile(t, filepath.Join(dir, "en.json")); got != want {
		t.Fatalf("en.json = %q", got)
	}

	existed, err = s.AddKey("x.y", "en", "Other")
	if err != nil || !existed {
		t.Fatalf("second AddKey = %v, %v", existed, err)
	}
	if got := readFile(t, filepath.Join(dir, "en.json")); got != want {
		t.Fatalf("second AddKey modified file: %q", got)
	}
}

func TestAddKey_DuplicateWritesNothing(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "locales")
	writeFile(t, filepath.Join(dir, "en.json"), `{"x": "Hi"}`)
	writeFile(t, filepath.Join(dir, "fr.json"), `{}`)
	writeFile(t, filepath.Join(dir, "de.json"), `{"y": "Ja"}`)

	s := &Store{Root: root}
	existed, err := s.AddKey("x", "en", "Bye")
	if err != nil || !existed {
		t.Fatalf("AddKey = %v, %v", existed, err)
	}
	for name, want := range map[string]string{
		"en.json": `{"x": "Hi"}`,
		"fr.json": `{}`,
		"de.json": `{"y": "Ja"}`,
	} {
		if got := readFile(t, filepath.Join(dir, name)); got != want {
			t.Errorf("%s = %q, want it untouched", name, got)
		}
	}
}

func TestAddKey_NestedObjectIsExisting(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "locales")
	en := `{"app": {"title": "T", "menu": "M"}}`
	writeFile(t, filepath.Join(dir, "en.json"), en)
	writeFile(t, filepath.Join(dir, "de.json"), `{}`)

	s := &Store{Root: root}
	existed, err := s.AddKey("app", "en", "X")
	if err != nil || !existed {
		t.Fatalf("AddKey = %v, %v; want existed", existed, err)
	}
	if got := readFile(t, filepath.Join(dir, "en.json")); got != en {
		t.Fatalf("en.json = %q, subtree must survive", got)
	}
	if got := readFile(t, filepath.Join(dir, "de.json")); got != `{}` {
		t.Fatalf("de.json = %q", got)
	}

	// A nested object in another language is kept as well.
	writeFile(t, filepath.Join(dir, "fr.json"), `{"menu": {"open": "Ouvrir"}}`)
	if _, err := s.AddKey("menu", "en", "Menu"); err != nil {
		t.Fatal(err)
	}
	if got := readFile(t, filepath.Join(dir, "fr.json")); got != `{"menu": {"open": "Ouvrir"}}` {
		t.Fatalf("fr.json = %q", got)
	}
}

func TestAddKey_PrefixConflict(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "locales")
	writeFile(t, filepath.Join(dir, "en.json"), `{}`)
	writeFile(t, filepath.Join(dir, "de.json"), `{"app": "App"}`)

	s := &Store{Root: root}
	_, err := s.AddKey("app.title", "en", "Title")
	if !errors.Is(err, ErrKeyConflict) {
		t.Fatalf("AddKey error = %v, want ErrKeyConflict", err)
	}
	if got := readFile(t, filepath.Join(dir, "en.json")); got != `{}` {
		t.Fatalf("en.json = %q, want no partial write", got)
	}
	if got := readFile(t, filepath.Join(dir, "de.json")); got != `{"app": "App"}` {
		t.Fatalf("de.json = %q", got)
	}
}

func TestAddKey_OtherLanguagesGetBlank(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "locales")
	writeFile(t, filepath.Join(dir, "de.json"), `{"k": "schon da"}`)
	writeFile(t, filepath.Join(dir, "fr.json"), `{}`)

	s := &Store{Root: root}
	if _, err := s.AddKey("k", "en", "Hello"); err != nil {
		t.Fatal(err)
	}

	cat, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if cat.Value("k", "en") != "Hello" || cat.Value("k", "de") != "schon da" || cat.Value("k", "fr") != "" {
		t.Fatalf("values = %#v", cat.Values["k"])
	}
	if _, err := os.Stat(filepath.Join(dir, "en.json")); err != nil {
		t.Fatalf("source file should be created: %v", err)
	}
}

func TestAddLanguageFile(t *testing.T) {
	root := t.TempDir()
	s := &Store{Root: root}

	created, err := s.AddLanguageFile("uk")
	if err != nil || !created {
		t.Fatalf("AddLanguageFile = %v, %v", created, err)
	}
	path := filepath.Join(root, "locales", "uk.json")
	if got := readFile(t, path); got != "{}\n" {
		t.Fatalf("uk.json = %q", got)
	}

	writeFile(t, path, `{"a": "b"}`)
	created, err = s.AddLanguageFile("uk")
	if err != nil || created {
		t.Fatalf("second AddLanguageFile = %v, %v", created, err)
	}
	if got := readFile(t, path); got != `{"a": "b"}` {
		t.Fatal("existing file was modified")
	}
}

func TestSeed(t *testing.T) {
	root := t.TempDir()
	s := &Store{Root: root, Dir: "i18n"}

	seeded, err := s.Seed("en")
	if err != nil || !seeded {
		t.Fatalf("Seed = %v, %v", seeded, err)
	}
	want := "{\n  \"app\": {\n    \"greeting\": \"Hello\",\n    \"title\": \"My App\"\n  }\n}\n"
	if got := readFile(t, filepath.Join(root, "i18n", "en.json")); got != want {
		t.Fatalf("seed = %q", got)
	}

	seeded, err = s.Seed("de")
	if err != nil || seeded {
		t.Fatalf("second Seed = %v, %v", seeded, err)
	}
}
