package estimate

import (
	"math"
	"testing"
)

func TestTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"   \n\t", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
		{"  Hello, world  ", 3},
		{"Привет", 2},
	}
	for _, tc := range tests {
		if got := Tokens(tc.text); got != tc.want {
			t.Errorf("Tokens(%q) = %d, want %d", tc.text, got, tc.want)
		}
	}
}

func TestCost(t *testing.T) {
	if _, ok := Cost(100, 100, "no-such-model"); ok {
		t.Fatal("unknown model should not be priced")
	}

	c, ok := Cost(0, 0, "gpt-4o-mini")
	if !ok || c != 0 {
		t.Fatalf("Cost(0, 0) = %v, %v", c, ok)
	}

	c, ok = Cost(1_000_000, 1_000_000, "gpt-4o")
	if !ok || math.Abs(c-12.5) > 1e-9 {
		t.Fatalf("Cost(gpt-4o) = %v, %v", c, ok)
	}
}

func TestCost_SnapshotPrefix(t *testing.T) {
	c, ok := Cost(1_000_000, 0, "claude-sonnet-4-20250514")
	if !ok || math.Abs(c-3.0) > 1e-9 {
		t.Fatalf("snapshot cost = %v, %v", c, ok)
	}

	// "gpt-4o-mini-…" must match gpt-4o-mini, not the shorter gpt-4o.
	c, ok = Cost(1_000_000, 0, "gpt-4o-mini-2024-07-18")
	if !ok || math.Abs(c-0.15) > 1e-9 {
		t.Fatalf("longest prefix cost = %v, %v", c, ok)
	}
}

func TestPreflight(t *testing.T) {
	s := Preflight([]string{"Hello", "Save changes"}, 50, "gpt-4o-mini")
	// Tokens: 2 and 3.
	if s.Jobs != 2 || s.PromptTokens != 105 || s.CompletionTokens != 5 {
		t.Fatalf("Preflight = %+v", s)
	}
	if s.TotalTokens() != 110 || !s.CostKnown {
		t.Fatalf("Preflight = %+v", s)
	}

	unknown := Preflight([]string{"x"}, 10, "mystery")
	if unknown.CostKnown || unknown.Cost != 0 {
		t.Fatalf("unknown model summary = %+v", unknown)
	}
}
