package credits

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// TokenEstimator converts text volume into a token count for pricing.
// The engine deliberately prices from an estimate rather than provider
// usage reports; implementations trade accuracy for cost.
type TokenEstimator interface {
	EstimateTokens(text string) int
}

// CharEstimator approximates tokens as ceil(runeCount / 4). This is the
// stock estimator and intentionally coarse.
type CharEstimator struct{}

func (CharEstimator) EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}

// TiktokenEstimator counts exact tokens with the model's BPE encoding.
// Swap it in where pricing accuracy matters more than the encoding load
// cost. Falls back to the char estimate when the encoding is unavailable.
type TiktokenEstimator struct {
	model    string
	once     sync.Once
	enc      *tiktoken.Tiktoken
	fallback CharEstimator
}

// NewTiktokenEstimator creates an estimator for the given model. The
// encoding loads lazily on first use.
func NewTiktokenEstimator(model string) *TiktokenEstimator {
	return &TiktokenEstimator{model: model}
}

func (e *TiktokenEstimator) EstimateTokens(text string) int {
	e.once.Do(func() {
		enc, err := tiktoken.EncodingForModel(e.model)
		if err != nil {
			enc, err = tiktoken.GetEncoding("cl100k_base")
			if err != nil {
				return
			}
		}
		e.enc = enc
	})
	if e.enc == nil {
		return e.fallback.EstimateTokens(text)
	}
	return len(e.enc.Encode(text, nil, nil))
}
