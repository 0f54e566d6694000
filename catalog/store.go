package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/minios-linux/lokat/jsonfile"
	"github.com/minios-linux/lokat/keypath"
	"github.com/minios-linux/lokat/langmeta"
)

// DefaultFolderName is searched for when no directory is configured.
const DefaultFolderName = "locales"

// MaxSearchDepth bounds the breadth-first directory search.
const MaxSearchDepth = 4

// ignoredDirs are never descended into during the directory search.
var ignoredDirs = map[string]bool{
	"node_modules": true,
	"dist":         true,
	"build":        true,
	"out":          true,
	"vendor":       true,
	"target":       true,
	"bin":          true,
	"obj":          true,
	"coverage":     true,
	"__pycache__":  true,
}

// seedDocument is written for the source language of a fresh catalog.
var seedDocument = map[string]string{
	"app.title":    "My App",
	"app.greeting": "Hello",
}

// Store reads and writes the language files of one project.
type Store struct {
	// Root is the project root. Empty means no project is open.
	Root string
	// Dir is the configured translations directory, absolute or relative
	// to Root. Empty falls back to searching for FolderName.
	Dir string
	// FolderName is the directory name searched for (case-insensitive).
	FolderName string
	// SourceLanguage is the preferred source language.
	SourceLanguage string
	// Logger receives diagnostics. Nil means no logging.
	Logger *zap.Logger
}

func (s *Store) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func (s *Store) folderName() string {
	if s.FolderName != "" {
		return s.FolderName
	}
	return DefaultFolderName
}

// ---------------------------------------------------------------------------
// Directory resolution
// ---------------------------------------------------------------------------

// ResolveDirectory returns the first existing candidate among the configured
// absolute path, the configured path relative to Root, and a breadth-first
// search below Root for a directory named FolderName.
func (s *Store) ResolveDirectory() (string, bool) {
	if s.Dir != "" && filepath.IsAbs(s.Dir) {
		if isDir(s.Dir) {
			return s.Dir, true
		}
	}
	if s.Root == "" {
		return "", false
	}
	if s.Dir != "" && !filepath.IsAbs(s.Dir) {
		candidate := filepath.Join(s.Root, s.Dir)
		if isDir(candidate) {
			return candidate, true
		}
	}
	return searchDir(s.Root, s.folderName(), MaxSearchDepth)
}

// searchDir walks root breadth-first looking for a directory named name.
func searchDir(root, name string, maxDepth int) (string, bool) {
	type item struct {
		path  string
		depth int
	}
	queue := []item{{root, 0}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		entries, err := os.ReadDir(cur.path)
		if err != nil {
			continue
		}
		// Check all children at this level before descending.
		var next []item
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			n := e.Name()
			if strings.HasPrefix(n, ".") || ignoredDirs[strings.ToLower(n)] {
				continue
			}
			p := filepath.Join(cur.path, n)
			if strings.EqualFold(n, name) {
				return p, true
			}
			if cur.depth+1 < maxDepth {
				next = append(next, item{p, cur.depth + 1})
			}
		}
		queue = append(queue, next...)
	}
	return "", false
}

// EnsureDirectory returns the resolved directory, creating the configured
// one (including parents) when it does not exist yet.
func (s *Store) EnsureDirectory() (string, error) {
	if dir, ok := s.ResolveDirectory(); ok {
		return dir, nil
	}

	dir := s.Dir
	if dir == "" {
		dir = s.folderName()
	}
	if !filepath.IsAbs(dir) {
		if s.Root == "" {
			return "", errors.New("no project root: cannot create translations directory")
		}
		dir = filepath.Join(s.Root, dir)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating %s: %w", dir, err)
	}
	s.logger().Info("created translations directory", zap.String("dir", dir))
	return dir, nil
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads every language file and assembles a fresh catalog. Missing
// project roots, directories and files are reported through Catalog.Status;
// only unexpected I/O errors are returned.
func (s *Store) Load() (*Catalog, error) {
	if s.Root == "" && (s.Dir == "" || !filepath.IsAbs(s.Dir)) {
		return emptyCatalog("", Status{
			Code:    StatusNoProjectRoot,
			Message: "No project is open. Open a folder to manage translations.",
		}), nil
	}

	dir, ok := s.ResolveDirectory()
	if !ok {
		return emptyCatalog("", Status{
			Code:    StatusDirectoryMissing,
			Message: fmt.Sprintf("Translations directory %q not found.", s.describeDir()),
		}), nil
	}

	codes, err := listLanguageFiles(dir)
	if err != nil {
		return nil, err
	}
	if len(codes) == 0 {
		return emptyCatalog(dir, Status{
			Code:    StatusNoLanguageFiles,
			Message: fmt.Sprintf("No language files (*.json) found in %s.", dir),
		}), nil
	}

	flat := make(map[string]map[string]string, len(codes))
	for _, code := range codes {
		flat[code] = s.readFlat(filepath.Join(dir, jsonfile.FileName(code)))
	}

	cat := assemble(codes, flat)
	cat.Dir = dir
	cat.SetSourceLanguage(s.SourceLanguage)
	cat.Status = Status{
		Code:    StatusOK,
		Message: fmt.Sprintf("Loaded %d languages, %d keys.", len(cat.Languages), len(cat.Keys)),
	}
	return cat, nil
}

func (s *Store) describeDir() string {
	if s.Dir != "" {
		return s.Dir
	}
	return s.folderName()
}

// listLanguageFiles returns the language codes of *.json files in registry order.
func listLanguageFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}

	var codes []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if code, ok := jsonfile.LangCode(e.Name()); ok {
			codes = append(codes, code)
		}
	}
	langmeta.Sort(codes)
	return codes, nil
}

// readFlat reads one language file leniently: any read or parse failure
// degrades to an empty document.
func (s *Store) readFlat(path string) map[string]string {
	obj, err := jsonfile.Read(path)
	if err != nil {
		s.logger().Warn("treating language file as empty", zap.String("path", path), zap.Error(err))
		return map[string]string{}
	}
	return keypath.Flatten(obj)
}

// assemble builds the dense catalog from per-language flat maps. codes must
// already be in registry order.
func assemble(codes []string, flat map[string]map[string]string) *Catalog {
	union := make(map[string]struct{})
	for _, m := range flat {
		for k := range m {
			union[k] = struct{}{}
		}
	}
	ids := make([]string, 0, len(union))
	for k := range union {
		ids = append(ids, k)
	}
	sort.Strings(ids)

	cat := emptyCatalog("", Status{})
	for _, code := range codes {
		cat.Languages = append(cat.Languages, langmeta.NewLanguage(code))
	}

	for _, id := range ids {
		row := make(map[string]string, len(codes))
		tags := make(map[string]struct{})
		for _, code := range codes {
			v := flat[code][id]
			row[code] = v
			if isBlank(v) {
				tags[TagUntranslated] = struct{}{}
			}
		}
		cat.Values[id] = row
		cat.Keys = append(cat.Keys, Key{ID: id, DisplayKey: id, Tags: tags})
	}
	return cat
}

// ---------------------------------------------------------------------------
// Writing
// ---------------------------------------------------------------------------

// WriteCell sets one value in one language file. A missing or unreadable
// file is treated as empty. This is the only way the store modifies files.
func (s *Store) WriteCell(lang, key, value string) error {
	if key == "" {
		return errors.New("empty key")
	}
	dir, err := s.EnsureDirectory()
	if err != nil {
		return err
	}
	path := filepath.Join(dir, jsonfile.FileName(lang))

	obj, err := jsonfile.Read(path)
	if err != nil {
		if !errors.Is(err, jsonfile.ErrInvalid) {
			return err
		}
		s.logger().Warn("overwriting unparsable language file", zap.String("path", path), zap.Error(err))
	}

	keypath.Set(obj, key, value)
	if err := jsonfile.Write(path, obj); err != nil {
		return err
	}
	s.logger().Debug("wrote cell", zap.String("lang", lang), zap.String("key", key))
	return nil
}

// ErrKeyConflict is returned by AddKey when a prefix of the key already
// holds a value in some language file.
var ErrKeyConflict = errors.New("key conflicts with an existing value")

// AddKey adds key to every existing language file and to the source
// language file. The source language receives sourceValue, every other
// language "". Files that already hold anything at the key path, a string
// or a nested object, are left untouched.
//
// When the source file already has the key, existed is true and no file is
// written. Every file is checked before the first write, so a conflict
// leaves the directory unchanged.
func (s *Store) AddKey(key, sourceLang, sourceValue string) (existed bool, err error) {
	if key == "" {
		return false, errors.New("empty key")
	}
	dir, err := s.EnsureDirectory()
	if err != nil {
		return false, err
	}

	codes, err := listLanguageFiles(dir)
	if err != nil {
		return false, err
	}
	if !contains(codes, sourceLang) {
		codes = append(codes, sourceLang)
	}

	docs := make(map[string]*keypath.Object, len(codes))
	for _, code := range codes {
		obj, err := jsonfile.Read(filepath.Join(dir, jsonfile.FileName(code)))
		if err != nil && !errors.Is(err, jsonfile.ErrInvalid) {
			return false, err
		}
		docs[code] = obj
	}

	if _, ok := keypath.Lookup(docs[sourceLang], key); ok {
		return true, nil
	}
	for _, code := range codes {
		if keypath.Blocked(docs[code], key) {
			return false, fmt.Errorf("%w: %q in %s", ErrKeyConflict, key, jsonfile.FileName(code))
		}
	}

	for _, code := range codes {
		if _, ok := keypath.Lookup(docs[code], key); ok {
			continue
		}
		value := ""
		if code == sourceLang {
			value = sourceValue
		}
		if err := s.WriteCell(code, key, value); err != nil {
			return false, fmt.Errorf("adding %q to %s: %w", key, code, err)
		}
	}
	return false, nil
}

// AddLanguageFile creates an empty file for code if none exists.
func (s *Store) AddLanguageFile(code string) (created bool, err error) {
	if code == "" {
		return false, errors.New("empty language code")
	}
	dir, err := s.EnsureDirectory()
	if err != nil {
		return false, err
	}
	path := filepath.Join(dir, jsonfile.FileName(code))
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("checking %s: %w", path, err)
	}

	if err := jsonfile.Write(path, keypath.NewObject()); err != nil {
		return false, err
	}
	s.logger().Info("created language file", zap.String("lang", code))
	return true, nil
}

// Seed writes a starter document for sourceLang when the translations
// directory holds no language file yet. It never touches existing files.
func (s *Store) Seed(sourceLang string) (bool, error) {
	dir, err := s.EnsureDirectory()
	if err != nil {
		return false, err
	}
	codes, err := listLanguageFiles(dir)
	if err != nil {
		return false, err
	}
	if len(codes) > 0 {
		return false, nil
	}

	path := filepath.Join(dir, jsonfile.FileName(sourceLang))
	if err := jsonfile.Write(path, keypath.Unflatten(seedDocument)); err != nil {
		return false, err
	}
	s.logger().Info("seeded catalog", zap.String("lang", sourceLang))
	return true, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// IsBlank reports whether a catalog value counts as untranslated.
func IsBlank(s string) bool {
	return isBlank(s)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
