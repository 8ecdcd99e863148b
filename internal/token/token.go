// Package token estimates the size of text in model-context units.
//
// Estimates are a budgeting heuristic, not a billing-accurate count: the only
// guarantees are determinism for identical input and monotonicity in text
// length under a fixed encoding. Estimators never fail; unencodable input
// falls back to a character-based count.
package token

import (
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// Estimator reports an approximate token count for a piece of text.
type Estimator interface {
	Estimate(text string) int
}

// DefaultCharsPerToken is the character-per-token ratio used by the
// heuristic estimator. ~4 chars/token holds for English prose.
const DefaultCharsPerToken = 4

// Heuristic estimates tokens from the rune count alone. It is cheap,
// deterministic and works offline, which makes it the default for tests and
// for providers without a published tokenizer.
type Heuristic struct {
	// CharsPerToken defaults to DefaultCharsPerToken when zero.
	CharsPerToken int
}

func (h Heuristic) ratio() int {
	if h.CharsPerToken <= 0 {
		return DefaultCharsPerToken
	}
	return h.CharsPerToken
}

// Estimate returns the rune count divided by the chars-per-token ratio,
// rounded up so non-empty text never estimates to zero.
func (h Heuristic) Estimate(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return (n + h.ratio() - 1) / h.ratio()
}

// Tiktoken estimates tokens with a real BPE encoding and falls back to the
// heuristic when the text cannot be encoded.
type Tiktoken struct {
	enc      *tiktoken.Tiktoken
	fallback Heuristic
}

// NewTiktoken returns an Estimator for the given model name. When the model
// has no known encoding the heuristic estimator is returned instead, so the
// caller always gets a working Estimator.
func NewTiktoken(model string) Estimator {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return Heuristic{}
	}
	return &Tiktoken{enc: enc}
}

// Estimate counts BPE tokens. Encoding failures degrade to the character
// heuristic rather than propagating.
func (t *Tiktoken) Estimate(text string) (n int) {
	if text == "" {
		return 0
	}
	defer func() {
		// The underlying encoder panics on some special-token inputs.
		// A budget signal must never take down the caller.
		if recover() != nil {
			n = t.fallback.Estimate(text)
		}
	}()
	return len(t.enc.Encode(text, nil, nil))
}
