package complexity

import (
	"math"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	simpleAnchor  = 0.2
	neutralAnchor = 0.5
	complexAnchor = 0.8

	maxLengthChars   = 500
	wordLengthCap    = 8.0
	codeFenceBoost   = 0.3
	arithmeticBoost  = 0.2
	questionSetBoost = 0.2
)

// Weights control how the score components are blended
type Weights struct {
	Anchor     float64
	Length     float64
	WordLength float64
	Indicators float64
}

// DefaultWeights favors the pattern anchor over the shape of the text
var DefaultWeights = Weights{
	Anchor:     0.6,
	Length:     0.1,
	WordLength: 0.15,
	Indicators: 0.15,
}

var (
	simplePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^\s*(hi|hello|hey|thanks|thank you|good (morning|afternoon|evening))\b`),
		regexp.MustCompile(`(?i)^\s*(what is|what's|who is|define|definition of|meaning of)\b`),
		regexp.MustCompile(`(?i)\btranslate\b`),
	}
	complexPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(code|function|algorithm|implement|debug|refactor|compile|regex|sql)\b`),
		regexp.MustCompile(`(?i)\b(prove|proof|theorem|derive|integral|equation|calculate|solve)\b`),
		regexp.MustCompile(`(?i)\b(analy[sz]e|compare|evaluate|step[- ]by[- ]step|trade-?offs?|architect\w*)\b`),
	}

	codeFencePattern  = regexp.MustCompile("(?s)```.*?```")
	arithmeticPattern = regexp.MustCompile(`\d\s*[-+*/^%]\s*\d`)
)

// Analyzer scores how demanding a query is on a 0..1 scale.
// It is stateless and safe for concurrent use.
type Analyzer struct {
	weights Weights
}

// NewAnalyzer creates an analyzer with DefaultWeights
func NewAnalyzer() *Analyzer {
	return &Analyzer{weights: DefaultWeights}
}

// NewAnalyzerWithWeights creates an analyzer with custom weights.
// Non-positive totals fall back to DefaultWeights.
func NewAnalyzerWithWeights(w Weights) *Analyzer {
	if w.Anchor+w.Length+w.WordLength+w.Indicators <= 0 {
		w = DefaultWeights
	}
	return &Analyzer{weights: w}
}

// Score returns the complexity of query in [0,1]
func (a *Analyzer) Score(query string) float64 {
	query = strings.TrimSpace(query)
	if query == "" {
		return 0
	}

	// Prose features ignore fenced code so adding a code block can only raise the score.
	prose := codeFencePattern.ReplaceAllString(query, " ")

	length := math.Min(float64(utf8.RuneCountInString(query))/maxLengthChars, 1)
	wordLength := math.Min(averageWordLength(prose)/wordLengthCap, 1)

	w := a.weights
	sum := w.Anchor*anchor(prose) +
		w.Length*length +
		w.WordLength*wordLength +
		w.Indicators*indicatorBoost(query)

	return clamp(sum / (w.Anchor + w.Length + w.WordLength + w.Indicators))
}

// EstimateTokens is a cheap token estimate used before any real tokenizer call
func EstimateTokens(text string) int {
	return int(math.Ceil(float64(len(text)) / 4))
}

func anchor(prose string) float64 {
	for _, p := range simplePatterns {
		if p.MatchString(prose) {
			return simpleAnchor
		}
	}
	for _, p := range complexPatterns {
		if p.MatchString(prose) {
			return complexAnchor
		}
	}
	return neutralAnchor
}

func indicatorBoost(query string) float64 {
	boost := 0.0
	if codeFencePattern.MatchString(query) {
		boost += codeFenceBoost
	}
	if arithmeticPattern.MatchString(query) {
		boost += arithmeticBoost
	}
	if strings.Count(query, "?") > 1 {
		boost += questionSetBoost
	}
	return boost
}

func averageWordLength(text string) float64 {
	words := strings.Fields(text)
	if len(words) == 0 {
		return 0
	}
	total := 0
	for _, word := range words {
		total += utf8.RuneCountInString(word)
	}
	return float64(total) / float64(len(words))
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
