// Package estimate provides rough token counts and USD cost estimates for
// translation runs.
package estimate

import (
	"strings"
	"unicode/utf8"
)

// CharsPerToken is the heuristic ratio used by Tokens.
const CharsPerToken = 4

// Price is a per-million-token price in USD.
type Price struct {
	Input  float64
	Output float64
}

// Prices maps model names to their per-million-token price.
var Prices = map[string]Price{
	"gpt-4o":                  {Input: 2.50, Output: 10.00},
	"gpt-4o-mini":             {Input: 0.15, Output: 0.60},
	"gpt-4.1":                 {Input: 2.00, Output: 8.00},
	"gpt-4.1-mini":            {Input: 0.40, Output: 1.60},
	"gpt-4.1-nano":            {Input: 0.10, Output: 0.40},
	"o3-mini":                 {Input: 1.10, Output: 4.40},
	"claude-3-5-haiku":        {Input: 0.80, Output: 4.00},
	"claude-sonnet-4":         {Input: 3.00, Output: 15.00},
	"gemini-2.5-flash":        {Input: 0.30, Output: 2.50},
	"gemini-2.5-pro":          {Input: 1.25, Output: 10.00},
	"gemini-2.0-flash":        {Input: 0.10, Output: 0.40},
	"llama-3.3-70b-versatile": {Input: 0.59, Output: 0.79},
}

// Tokens estimates the token count of text: one token per four characters
// of the trimmed text, rounded up. Blank text is zero tokens.
func Tokens(text string) int {
	n := utf8.RuneCountInString(strings.TrimSpace(text))
	return (n + CharsPerToken - 1) / CharsPerToken
}

// Cost returns the estimated USD cost. ok is false for models without a
// known price; callers show those as "unknown" rather than zero.
func Cost(promptTokens, completionTokens int, model string) (cost float64, ok bool) {
	p, ok := lookup(model)
	if !ok {
		return 0, false
	}
	return (float64(promptTokens)*p.Input + float64(completionTokens)*p.Output) / 1e6, true
}

// lookup matches the exact model name first, then the longest known prefix
// so dated snapshots ("claude-sonnet-4-20250514") still resolve.
func lookup(model string) (Price, bool) {
	model = strings.ToLower(strings.TrimSpace(model))
	if p, ok := Prices[model]; ok {
		return p, true
	}
	best := ""
	for name := range Prices {
		if strings.HasPrefix(model, name+"-") && len(name) > len(best) {
			best = name
		}
	}
	if best == "" {
		return Price{}, false
	}
	return Prices[best], true
}

// Summary is a pre-flight estimate for a set of translation jobs.
type Summary struct {
	Jobs             int
	PromptTokens     int
	CompletionTokens int
	Model            string
	Cost             float64
	CostKnown        bool
}

// TotalTokens is prompt plus completion tokens.
func (s Summary) TotalTokens() int {
	return s.PromptTokens + s.CompletionTokens
}

// Preflight estimates a run where each source text is sent with a fixed
// prompt overhead and the answer is assumed to be as long as the source.
func Preflight(sources []string, overheadTokens int, model string) Summary {
	s := Summary{Jobs: len(sources), Model: model}
	for _, src := range sources {
		n := Tokens(src)
		s.PromptTokens += n + overheadTokens
		s.CompletionTokens += n
	}
	s.Cost, s.CostKnown = Cost(s.PromptTokens, s.CompletionTokens, model)
	return s
}
