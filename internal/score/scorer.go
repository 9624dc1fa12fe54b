package score

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ppiankov/cyclotron/internal/model"
)

var (
	// ErrInvalidArgument is returned for inputs the scorer cannot aggregate
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrEmptyThread is returned when a thread has no messages
	ErrEmptyThread = fmt.Errorf("%w: thread has no messages", ErrInvalidArgument)

	// ErrInconsistentBands is returned when bands do not partition [0,100]
	ErrInconsistentBands = errors.New("inconsistent consciousness bands")
)

const (
	baseScore        = 50
	truthMultiplier  = 5
	manipMultiplier  = 10
	truthMatchWeight = 1
)

// Scorer classifies text against fixed manipulation and truth phrase tables
type Scorer struct {
	rules Rules
	now   func() time.Time
}

// NewScorer creates a scorer with the built-in rules
func NewScorer() *Scorer {
	s, err := NewScorerWithRules(DefaultRules())
	if err != nil {
		panic(fmt.Sprintf("built-in scoring rules are invalid: %v", err))
	}
	return s
}

// NewScorerWithRules creates a scorer with custom rules. The scorer keeps its
// own copy, so later edits to rules do not reach it.
func NewScorerWithRules(rules Rules) (*Scorer, error) {
	owned := rules.Clone()
	if err := owned.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{
		rules: owned,
		now:   func() time.Time { return time.Now().UTC() },
	}, nil
}

// Rules returns a copy of the rules the scorer was built with
func (s *Scorer) Rules() Rules {
	return s.rules.Clone()
}

// Analyze scores a single message. It is total: every string, including the
// empty one, yields a complete result.
func (s *Scorer) Analyze(text string) model.AnalysisResult {
	normalized := strings.ToLower(text)

	// 1. Manipulation patterns, plus word salad from incoherence
	manipMatches := matchPhrases(normalized, s.rules.Manipulation, s.rules.SeverityOf)
	if m, ok := wordSaladMatch(normalized); ok {
		manipMatches = append(manipMatches, m)
	}
	manipulation := model.Detection{
		Score:      sumWeights(manipMatches),
		Matches:    manipMatches,
		Confidence: confidence(len(manipMatches)),
	}

	// 2. Truth signals, each worth 1
	truthMatches := matchPhrases(normalized, s.rules.Truth, func(model.Category) int { return truthMatchWeight })
	truth := model.Detection{
		Score:      sumWeights(truthMatches),
		Matches:    truthMatches,
		Confidence: confidence(len(truthMatches)),
	}

	// 3. Composite
	composite := clamp(baseScore+truth.Score*truthMultiplier-manipulation.Score*manipMultiplier, 0, 100)

	// Ties, including the empty case, favor TRUTH
	algorithm := model.AlgorithmTruth
	if manipulation.Score > truth.Score {
		algorithm = model.AlgorithmDeceit
	}

	band := s.bandFor(composite)

	return model.AnalysisResult{
		Input:               text,
		Timestamp:           s.now(),
		Score:               composite,
		Level:               band.Label,
		LevelDescription:    band.Description,
		Algorithm:           algorithm,
		Manipulation:        manipulation,
		Truth:               truth,
		FifteenDegreeTurns:  len(manipMatches),
		RecommendedResponse: s.recommend(algorithm, manipulation, truth),
		Analysis: model.Breakdown{
			RedFlags:        manipulation.Categories(),
			GreenFlags:      truth.Categories(),
			PrimaryConcern:  primary(manipulation),
			PrimaryStrength: primary(truth),
		},
	}
}

// bandFor returns the first declared band containing score. Rules are
// validated at construction, so a miss is an internal consistency failure.
func (s *Scorer) bandFor(score int) model.Band {
	for _, b := range s.rules.Bands {
		if b.Contains(score) {
			return b
		}
	}
	panic(fmt.Sprintf("%v: no band contains score %d", ErrInconsistentBands, score))
}

// recommend picks the canned response for the analysis
func (s *Scorer) recommend(algorithm model.Algorithm, manipulation, truth model.Detection) string {
	if algorithm == model.AlgorithmDeceit {
		if len(manipulation.Matches) == 0 {
			return ResponseBoundary
		}
		// First match in declaration order, not the most severe one
		return s.rules.ResponseFor(manipulation.Matches[0].Category)
	}

	if len(truth.Matches) > 0 {
		return ResponsePositive
	}
	return ResponseNeutral
}

func primary(d model.Detection) model.Category {
	if len(d.Matches) == 0 {
		return model.CategoryNone
	}
	return d.Matches[0].Category
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
