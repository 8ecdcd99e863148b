package token

import (
	"strings"
	"testing"
)

func TestHeuristicEstimate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want int
	}{
		{name: "empty", text: "", want: 0},
		{name: "single char rounds up", text: "a", want: 1},
		{name: "exactly one token", text: "abcd", want: 1},
		{name: "five chars", text: "abcde", want: 2},
		{name: "eight chars", text: "abcdefgh", want: 2},
	}

	est := Heuristic{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := est.Estimate(tt.text); got != tt.want {
				t.Errorf("Estimate(%q) = %d, want %d", tt.text, got, tt.want)
			}
		})
	}
}

func TestHeuristicCustomRatio(t *testing.T) {
	t.Parallel()

	est := Heuristic{CharsPerToken: 2}
	if got := est.Estimate("abcd"); got != 2 {
		t.Errorf("Estimate with ratio 2 = %d, want 2", got)
	}
}

func TestHeuristicMonotonic(t *testing.T) {
	t.Parallel()

	est := Heuristic{}
	prev := 0
	for i := 1; i <= 64; i++ {
		n := est.Estimate(strings.Repeat("x", i))
		if n < prev {
			t.Fatalf("estimate decreased at length %d: %d < %d", i, n, prev)
		}
		prev = n
	}
}

func TestHeuristicDeterministic(t *testing.T) {
	t.Parallel()

	est := Heuristic{}
	text := "the quick brown fox jumps over the lazy dog"
	first := est.Estimate(text)
	for range 10 {
		if got := est.Estimate(text); got != first {
			t.Fatalf("estimate not deterministic: %d != %d", got, first)
		}
	}
}

func TestHeuristicMultibyte(t *testing.T) {
	t.Parallel()

	// Rune count, not byte count: four CJK runes at ratio 4 is one token.
	est := Heuristic{}
	if got := est.Estimate("日本語字"); got != 1 {
		t.Errorf("Estimate(multibyte) = %d, want 1", got)
	}
}

func TestNewTiktokenUnknownModelFallsBack(t *testing.T) {
	t.Parallel()

	est := NewTiktoken("definitely-not-a-model")
	if est == nil {
		t.Fatal("NewTiktoken returned nil")
	}
	// Must behave like the heuristic: non-empty text estimates positive.
	if got := est.Estimate("hello world"); got <= 0 {
		t.Errorf("fallback estimate = %d, want positive", got)
	}
	if got := est.Estimate(""); got != 0 {
		t.Errorf("fallback estimate of empty = %d, want 0", got)
	}
}
