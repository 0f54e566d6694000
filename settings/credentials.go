// Package settings stores per-user lokat state outside any project:
// provider credentials and the token usage report.
//
// Everything lives in the XDG data directory:
//
//	$XDG_DATA_HOME/lokat/  (default: ~/.local/share/lokat/)
//
// Files:
//   - auth.json   provider credentials, keyed by provider ID (mode 0600)
//   - usage.json  accumulated token usage
//
// Lookup order for API keys:
//  1. --api-key flag
//  2. LOKAT_API_KEY environment variable (a project .env is loaded into it)
//  3. This credential store
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const (
	dataDirName   = "lokat"
	authFileName  = "auth.json"
	usageFileName = "usage.json"
)

// EnvAPIKey overrides the stored key for every provider.
const EnvAPIKey = "LOKAT_API_KEY"

// Credential is the stored entry for one provider.
type Credential struct {
	Key string `json:"key"`
	// BaseURL is kept for custom OpenAI-compatible endpoints.
	BaseURL string `json:"baseUrl,omitempty"`
}

// Store holds all provider credentials, keyed by provider ID.
type Store map[string]*Credential

// ---------------------------------------------------------------------------
// Paths
// ---------------------------------------------------------------------------

// DataDir returns the lokat data directory, honoring $XDG_DATA_HOME.
func DataDir() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, dataDirName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", dataDirName), nil
}

func dataFile(name string) (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// AuthPath returns the credential file path.
func AuthPath() (string, error) {
	return dataFile(authFileName)
}

// UsagePath returns the usage report path.
func UsagePath() (string, error) {
	return dataFile(usageFileName)
}

// ---------------------------------------------------------------------------
// Load / Save
// ---------------------------------------------------------------------------

// Load reads the credential store. A missing or unreadable file yields an
// empty store.
func Load() Store {
	path, err := AuthPath()
	if err != nil {
		return make(Store)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return make(Store)
	}

	var store Store
	if err := json.Unmarshal(data, &store); err != nil || store == nil {
		return make(Store)
	}
	return store
}

// Save writes the credential store with owner-only permissions.
func Save(store Store) error {
	path, err := AuthPath()
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(store, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling credentials: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing auth file: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// API keys
// ---------------------------------------------------------------------------

// SetAPIKey stores key (and an optional base URL) for a provider.
func SetAPIKey(providerID, key, baseURL string) error {
	store := Load()
	store[providerID] = &Credential{Key: key, BaseURL: baseURL}
	return Save(store)
}

// Get returns the stored credential for a provider, or nil.
func Get(providerID string) *Credential {
	return Load()[providerID]
}

// Remove deletes the credential of a provider.
func Remove(providerID string) error {
	store := Load()
	if _, ok := store[providerID]; !ok {
		return nil
	}
	delete(store, providerID)
	return Save(store)
}

// ResolveAPIKey applies the lookup order: flag, environment, store.
func ResolveAPIKey(flagValue, providerID string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv(EnvAPIKey); env != "" {
		return env
	}
	if c := Get(providerID); c != nil {
		return c.Key
	}
	return ""
}

// MaskKey returns a masked key for display.
func MaskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
