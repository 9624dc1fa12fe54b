package score

import (
	"regexp"
	"strings"

	"github.com/ppiankov/cyclotron/internal/model"
)

const (
	incoherenceMinTokens   = 50
	incoherenceUniqueRatio = 0.8
	incoherenceScore       = 0.7
	incoherenceThreshold   = 0.6
	incoherencePhrase      = "high incoherence"
	incoherenceMatchWeight = 3
)

var sentenceBreak = regexp.MustCompile(`[.!?]+`)

// incoherence flags long text with an unusually high share of distinct tokens
// as possible word salad. Returns 0.7 when triggered, else 0.
func incoherence(text string) float64 {
	sentences := 0
	for _, s := range sentenceBreak.Split(text, -1) {
		if strings.TrimSpace(s) != "" {
			sentences++
		}
	}
	if sentences < 2 {
		return 0
	}

	tokens := strings.Fields(text)
	if len(tokens) <= incoherenceMinTokens {
		return 0
	}

	distinct := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		distinct[tok] = struct{}{}
	}

	ratio := float64(len(distinct)) / float64(len(tokens))
	if ratio > incoherenceUniqueRatio {
		return incoherenceScore
	}
	return 0
}

// wordSaladMatch returns the synthetic match appended when incoherence trips
func wordSaladMatch(text string) (model.Match, bool) {
	if incoherence(text) <= incoherenceThreshold {
		return model.Match{}, false
	}
	return model.Match{
		Category: model.CategoryWordSalad,
		Phrase:   incoherencePhrase,
		Weight:   incoherenceMatchWeight,
	}, true
}
