// Package config loads and saves the .lokat.yaml project configuration.
//
// The file lives in the project root. Every field is optional; a project
// without .lokat.yaml uses the defaults below and searches for a "locales"
// directory.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the project configuration file name.
const FileName = ".lokat.yaml"

// Defaults.
const (
	DefaultFolderName   = "locales"
	DefaultSourceLang   = "en"
	DefaultProvider     = "openai"
	DefaultRequestDelay = 500 * time.Millisecond
	DefaultMaxRetries   = 3
)

// rootMarkers identify a project root when no .lokat.yaml is found.
var rootMarkers = []string{FileName, ".git", "package.json", "go.mod"}

// ---------------------------------------------------------------------------
// YAML schema
// ---------------------------------------------------------------------------

// Duration is a time.Duration written as "500ms", "2m" in YAML.
type Duration time.Duration

// UnmarshalYAML accepts duration strings and plain integers (milliseconds).
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	if ms, err := strconv.Atoi(s); err == nil {
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q", node.Line, s)
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML writes the duration in Go notation.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// File is the .lokat.yaml structure.
type File struct {
	// TranslationsDir is the directory with <lang>.json files, absolute or
	// relative to the project root.
	TranslationsDir string `yaml:"translations_dir,omitempty"`
	// FolderName is searched for when TranslationsDir is not set.
	FolderName string `yaml:"folder_name,omitempty"`
	// SourceLang is the language translated from (default "en").
	SourceLang string `yaml:"source_lang,omitempty"`
	// Languages is the active language set. Empty means every language
	// that has a file.
	Languages []string `yaml:"languages,omitempty"`

	// Provider is the AI provider ID.
	Provider string `yaml:"provider,omitempty"`
	// Model overrides the provider's default model.
	Model string `yaml:"model,omitempty"`
	// BaseURL overrides the provider's API base URL.
	BaseURL string `yaml:"base_url,omitempty"`
	// Proxy is an HTTP/HTTPS proxy URL for provider requests.
	Proxy string `yaml:"proxy,omitempty"`

	// RequestDelay is the pause between translation jobs.
	RequestDelay Duration `yaml:"request_delay,omitempty"`
	// MaxRetries is the retry budget for rate limits and server errors.
	MaxRetries int `yaml:"max_retries,omitempty"`
	// Timeout is the per-request timeout.
	Timeout Duration `yaml:"timeout,omitempty"`
}

// Default returns a configuration with every default filled in.
func Default() *File {
	f := &File{}
	f.applyDefaults()
	return f
}

func (f *File) applyDefaults() {
	if f.FolderName == "" {
		f.FolderName = DefaultFolderName
	}
	if f.SourceLang == "" {
		f.SourceLang = DefaultSourceLang
	}
	if f.Provider == "" {
		f.Provider = DefaultProvider
	}
	if f.RequestDelay == 0 {
		f.RequestDelay = Duration(DefaultRequestDelay)
	}
	if f.MaxRetries == 0 {
		f.MaxRetries = DefaultMaxRetries
	}
}

// Delay returns RequestDelay as a time.Duration.
func (f *File) Delay() time.Duration {
	return time.Duration(f.RequestDelay)
}

// RequestTimeout returns Timeout as a time.Duration.
func (f *File) RequestTimeout() time.Duration {
	return time.Duration(f.Timeout)
}

// ---------------------------------------------------------------------------
// Loading and saving
// ---------------------------------------------------------------------------

// Load reads .lokat.yaml from rootDir. A missing file yields the defaults;
// exists reports whether the file was present.
func Load(rootDir string) (f *File, exists bool, err error) {
	path := filepath.Join(rootDir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), false, nil
		}
		return nil, false, fmt.Errorf("reading %s: %w", path, err)
	}

	f = &File{}
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, true, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := f.validate(); err != nil {
		return nil, true, fmt.Errorf("%s: %w", path, err)
	}
	f.applyDefaults()
	return f, true, nil
}

func (f *File) validate() error {
	if f.MaxRetries < 0 {
		return errors.New("max_retries must not be negative")
	}
	if f.RequestDelay < 0 || f.Timeout < 0 {
		return errors.New("durations must not be negative")
	}
	for _, l := range f.Languages {
		if strings.TrimSpace(l) == "" {
			return errors.New("languages must not contain empty codes")
		}
	}
	return nil
}

// Save writes f to rootDir/.lokat.yaml.
func (f *File) Save(rootDir string) error {
	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	path := filepath.Join(rootDir, FileName)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Project root
// ---------------------------------------------------------------------------

// FindRoot walks up from dir to the nearest directory holding .lokat.yaml,
// falling back to the nearest one with another project marker. When none
// is found dir itself is returned.
func FindRoot(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}

	for _, marker := range rootMarkers {
		for cur := abs; ; {
			if _, err := os.Stat(filepath.Join(cur, marker)); err == nil {
				return cur, nil
			}
			parent := filepath.Dir(cur)
			if parent == cur {
				break
			}
			cur = parent
		}
	}
	return abs, nil
}
