package credits

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Pricing invariants: cost is never negative, a priced message never
// costs zero when the per-message rate is positive, and more tokens
// never cost less.
func TestPriceOf_Properties(t *testing.T) {
	a := NewAccountant(testPrices(), nil, nil, nil, nil)
	ctx := context.Background()

	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 200
	properties := gopter.NewProperties(params)

	properties.Property("cost is non-negative and positive for a real message", prop.ForAll(
		func(tokens int) bool {
			cost, err := a.PriceOf(ctx, "openai", "gpt-4o", 1, tokens)
			return err == nil && cost > 0
		},
		gen.IntRange(0, 1_000_000),
	))

	properties.Property("cost is monotonic in token count", prop.ForAll(
		func(tokens, extra int) bool {
			base, err := a.PriceOf(ctx, "anthropic", "claude-sonnet", 1, tokens)
			if err != nil {
				return false
			}
			more, err := a.PriceOf(ctx, "anthropic", "claude-sonnet", 1, tokens+extra)
			if err != nil {
				return false
			}
			return more >= base
		},
		gen.IntRange(0, 500_000),
		gen.IntRange(0, 500_000),
	))

	properties.Property("cost is monotonic in message count", prop.ForAll(
		func(messages int) bool {
			one, err := a.PriceOf(ctx, "openai", "gpt-4o", messages, 100)
			if err != nil {
				return false
			}
			two, err := a.PriceOf(ctx, "openai", "gpt-4o", messages+1, 100)
			if err != nil {
				return false
			}
			return two > one
		},
		gen.IntRange(1, 10_000),
	))

	properties.TestingRun(t)
}
