package score

import (
	"strings"

	"github.com/ppiankov/cyclotron/internal/model"
)

// matchPhrases returns one match per contained phrase, in category-then-phrase
// declaration order. text must already be lower-cased.
func matchPhrases(text string, dict Dictionary, weight func(model.Category) int) []model.Match {
	var matches []model.Match
	for _, set := range dict {
		for _, phrase := range set.Phrases {
			if phrase == "" {
				continue
			}
			if strings.Contains(text, phrase) {
				matches = append(matches, model.Match{
					Category: set.Category,
					Phrase:   phrase,
					Weight:   weight(set.Category),
				})
			}
		}
	}
	return matches
}

// sumWeights totals the weight of all matches
func sumWeights(matches []model.Match) int {
	total := 0
	for _, m := range matches {
		total += m.Weight
	}
	return total
}

// confidence is 0 without matches, else min(0.95, 0.5 + 0.15*count)
func confidence(count int) float64 {
	if count == 0 {
		return 0
	}
	c := 0.5 + 0.15*float64(count)
	if c > 0.95 {
		return 0.95
	}
	return c
}
