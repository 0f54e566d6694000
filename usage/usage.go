// Package usage accumulates token usage reported by the provider.
package usage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Usage is the token accounting of one successful provider call.
type Usage struct {
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	Model            string `json:"model,omitempty"`
}

// Total returns TotalTokens, or prompt+completion when the provider did
// not report a total.
func (u Usage) Total() int {
	if u.TotalTokens > 0 {
		return u.TotalTokens
	}
	return u.PromptTokens + u.CompletionTokens
}

// Report is the running total over many calls. A Report only grows; it is
// not safe for concurrent use.
type Report struct {
	TotalTokens      int            `json:"total_tokens"`
	PromptTokens     int            `json:"prompt_tokens"`
	CompletionTokens int            `json:"completion_tokens"`
	Requests         int            `json:"requests"`
	PerModel         map[string]int `json:"per_model"`
	PerLanguage      map[string]int `json:"per_language"`
	LastUpdated      *time.Time     `json:"last_updated,omitempty"`
}

// New returns an empty report.
func New() *Report {
	return &Report{
		PerModel:    make(map[string]int),
		PerLanguage: make(map[string]int),
	}
}

// Add folds one call's usage into the report. Calls without a model are
// counted under "unknown".
func (r *Report) Add(u Usage, lang string, at time.Time) {
	if r.PerModel == nil {
		r.PerModel = make(map[string]int)
	}
	if r.PerLanguage == nil {
		r.PerLanguage = make(map[string]int)
	}

	total := u.Total()
	r.TotalTokens += total
	r.PromptTokens += u.PromptTokens
	r.CompletionTokens += u.CompletionTokens
	r.Requests++

	model := u.Model
	if model == "" {
		model = "unknown"
	}
	r.PerModel[model] += total
	if lang != "" {
		r.PerLanguage[lang] += total
	}

	at = at.UTC()
	r.LastUpdated = &at
}

// Load reads a report from path. A missing file yields an empty report.
func Load(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(), nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	r := New()
	if err := json.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if r.PerModel == nil {
		r.PerModel = make(map[string]int)
	}
	if r.PerLanguage == nil {
		r.PerLanguage = make(map[string]int)
	}
	return r, nil
}

// Save writes the report to path, creating parent directories.
func (r *Report) Save(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding usage: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
