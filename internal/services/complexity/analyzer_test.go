package complexity

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScoreStaysInRange(t *testing.T) {
	a := NewAnalyzer()
	queries := []string{
		"",
		"   ",
		"hi",
		"?",
		"1+1",
		strings.Repeat("supercalifragilistic ", 200),
		strings.Repeat("? 9*9 ", 300) + "```go\nfunc main() {}\n```",
		"Prove that the integral of 2*x is x^2 step by step??",
		"日本語のテキストを翻訳してください",
	}
	for _, q := range queries {
		s := a.Score(q)
		assert.GreaterOrEqual(t, s, 0.0, "query %q", q)
		assert.LessOrEqual(t, s, 1.0, "query %q", q)
	}
}

func TestScoreCodeBlockNeverLowers(t *testing.T) {
	a := NewAnalyzer()
	block := "\n```python\nprint('hi')\nx = [i for i in range(10)]\n```"
	queries := []string{
		"hello",
		"Explain quantum computing",
		"Implement a binary search",
		"What is a monad?",
		"why does this fail? what should I change?",
	}
	for _, q := range queries {
		assert.GreaterOrEqual(t, a.Score(q+block), a.Score(q), "query %q", q)
	}
}

func TestScoreAnchors(t *testing.T) {
	a := NewAnalyzer()

	simple := a.Score("hello")
	neutral := a.Score("Explain quantum computing")
	complexQ := a.Score("Implement a function that computes fibonacci numbers using dynamic programming")

	assert.Less(t, simple, 0.3)
	assert.Less(t, simple, neutral)
	assert.Less(t, neutral, complexQ)
	assert.GreaterOrEqual(t, complexQ, 0.5)
}

func TestScoreMediumBand(t *testing.T) {
	s := NewAnalyzer().Score("Explain quantum computing")
	assert.GreaterOrEqual(t, s, 0.4)
	assert.LessOrEqual(t, s, 0.6)
}

func TestScoreIndicatorsRaiseScore(t *testing.T) {
	a := NewAnalyzer()
	base := a.Score("Tell me about the weather")
	assert.Greater(t, a.Score("Tell me about the weather 12 * 4"), base)
	assert.Greater(t, a.Score("Tell me about the weather? And tomorrow?"), base)
}

func TestCustomWeightsFallback(t *testing.T) {
	a := NewAnalyzerWithWeights(Weights{})
	require.Equal(t, DefaultWeights, a.weights)

	anchorOnly := NewAnalyzerWithWeights(Weights{Anchor: 1})
	assert.InDelta(t, 0.2, anchorOnly.Score("hello there"), 1e-9)
	assert.InDelta(t, 0.8, anchorOnly.Score("please debug this"), 1e-9)
	assert.InDelta(t, 0.5, anchorOnly.Score("tell me a story"), 1e-9)
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
		{strings.Repeat("x", 2000), 500},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EstimateTokens(tt.text), "text len %d", len(tt.text))
	}
}
