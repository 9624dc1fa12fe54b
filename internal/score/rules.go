package score

import (
	"fmt"

	"github.com/ppiankov/cyclotron/internal/model"
)

// PatternSet is one category and its trigger phrases, in declaration order
type PatternSet struct {
	Category model.Category `yaml:"category"`
	Phrases  []string       `yaml:"phrases"`
}

// Dictionary is an ordered list of pattern sets. Order decides match order
// and therefore which category becomes the primary concern.
type Dictionary []PatternSet

// defaultSeverity applies to manipulation categories missing from the table
const defaultSeverity = 2

// Rules is the immutable data a Scorer runs on
type Rules struct {
	Manipulation Dictionary
	Truth        Dictionary
	Severity     map[model.Category]int
	Bands        []model.Band
	Responses    map[model.Category]string
}

// Canned responses outside the per-category table
const (
	ResponseBoundary = "Maintain boundaries. Do not JADE (Justify, Argue, Defend, Explain)."
	ResponsePositive = "Positive signals detected. This communication shows accountability and clarity. Engage openly."
	ResponseNeutral  = "Neutral communication. Continue observing for pattern consistency."

	ThreadManipulative = "This communication pattern shows consistent manipulation. Consider limiting contact or setting firm boundaries."
	ThreadHealthy      = "Communication patterns are generally healthy. Continue with awareness."
)

// DefaultRules returns the built-in phrase tables
func DefaultRules() Rules {
	return Rules{
		Manipulation: Dictionary{
			{model.CategoryGaslighting, []string{"you never", "you always", "that didn't happen", "you're crazy", "you're too sensitive", "i never said that"}},
			{model.CategoryLoveBombing, []string{"you're the only one", "no one understands me like you", "we're soulmates", "i've never felt this way"}},
			{model.CategoryFutureFaking, []string{"soon", "when things settle", "next month", "i promise", "trust me", "just wait"}},
			{model.CategoryGuiltTripping, []string{"after all i've done", "you owe me", "how could you", "i sacrificed"}},
			{model.CategoryStonewalling, []string{"whatever", "i don't care", "fine", "do what you want"}},
			{model.CategoryDeflection, []string{"what about when you", "you do it too", "that's not the point"}},
			{model.CategoryTriangulation, []string{"everyone thinks", "they all said", "even your friends agree"}},
			{model.CategoryVictimPlaying, []string{"i'm always the bad guy", "nothing i do is right", "you never appreciate"}},
			{model.CategoryWordSalad, nil},
			{model.CategorySilentTreatment, nil},
		},
		Truth: Dictionary{
			{model.CategoryAccountability, []string{"i was wrong", "i apologize", "my mistake", "i should have", "i take responsibility"}},
			{model.CategoryClarity, []string{"specifically", "for example", "to be clear", "what i mean is"}},
			{model.CategoryConsistency, nil},
			{model.CategoryBoundaries, []string{"i need", "i feel", "i won't", "that doesn't work for me"}},
			{model.CategoryDirectness, []string{"yes", "no", "i don't know", "let me think about it"}},
		},
		Severity: map[model.Category]int{
			model.CategoryGaslighting:     5,
			model.CategoryLoveBombing:     3,
			model.CategoryFutureFaking:    3,
			model.CategoryGuiltTripping:   4,
			model.CategoryStonewalling:    3,
			model.CategoryDeflection:      3,
			model.CategoryTriangulation:   4,
			model.CategoryVictimPlaying:   3,
			model.CategoryWordSalad:       3,
			model.CategorySilentTreatment: 3,
		},
		Bands: []model.Band{
			{Min: 0, Max: 20, Label: "Critical", Description: "High Manipulation"},
			{Min: 21, Max: 40, Label: "Low", Description: "Significant Patterns"},
			{Min: 41, Max: 60, Label: "Developing", Description: "Mixed Signals"},
			{Min: 61, Max: 80, Label: "Elevated", Description: "Mostly Truth"},
			{Min: 81, Max: 100, Label: "Mastery", Description: "Truth Algorithm Active"},
		},
		Responses: map[model.Category]string{
			model.CategoryGaslighting:     "Trust your memory. Document interactions. Do not engage in debate about reality.",
			model.CategoryLoveBombing:     "Slow down. Healthy relationships build gradually. Watch for consistency.",
			model.CategoryFutureFaking:    "Focus on actions, not promises. Set concrete timelines with consequences.",
			model.CategoryGuiltTripping:   "You are not responsible for their emotions. Maintain your boundaries.",
			model.CategoryStonewalling:    `Name the behavior. "I notice you're shutting down. Let's revisit when you're ready."`,
			model.CategoryDeflection:      `Redirect to original topic. "We can discuss that separately. Right now we're talking about X."`,
			model.CategoryTriangulation:   `Verify claims directly. Do not accept secondhand "everyone thinks" statements.`,
			model.CategoryVictimPlaying:   `Acknowledge feelings without accepting blame. "I hear you're frustrated. That doesn't change X."`,
			model.CategoryWordSalad:       `Request clarity. "I want to understand. Can you give me one specific example?"`,
			model.CategorySilentTreatment: `State your boundary. "I'm available to talk when you're ready. I won't chase."`,
		},
	}
}

// SeverityOf returns the weight of a manipulation category
func (r Rules) SeverityOf(c model.Category) int {
	if w, ok := r.Severity[c]; ok {
		return w
	}
	return defaultSeverity
}

// ResponseFor returns the canned response for a category, or the boundary default
func (r Rules) ResponseFor(c model.Category) string {
	if resp, ok := r.Responses[c]; ok && resp != "" {
		return resp
	}
	return ResponseBoundary
}

// Clone returns a deep copy that shares no slices or maps with r
func (r Rules) Clone() Rules {
	out := Rules{
		Manipulation: r.Manipulation.clone(),
		Truth:        r.Truth.clone(),
		Bands:        append([]model.Band(nil), r.Bands...),
	}
	if r.Severity != nil {
		out.Severity = make(map[model.Category]int, len(r.Severity))
		for c, w := range r.Severity {
			out.Severity[c] = w
		}
	}
	if r.Responses != nil {
		out.Responses = make(map[model.Category]string, len(r.Responses))
		for c, resp := range r.Responses {
			out.Responses[c] = resp
		}
	}
	return out
}

func (d Dictionary) clone() Dictionary {
	if d == nil {
		return nil
	}
	out := make(Dictionary, len(d))
	for i, set := range d {
		out[i] = PatternSet{
			Category: set.Category,
			Phrases:  append([]string(nil), set.Phrases...),
		}
	}
	return out
}

// Validate checks that bands partition [0,100] without gaps or overlap
func (r Rules) Validate() error {
	if len(r.Bands) == 0 {
		return fmt.Errorf("%w: no bands declared", ErrInconsistentBands)
	}

	next := 0
	for i, b := range r.Bands {
		if b.Min > b.Max {
			return fmt.Errorf("%w: band %d (%s) has min %d > max %d", ErrInconsistentBands, i, b.Label, b.Min, b.Max)
		}
		if b.Min != next {
			return fmt.Errorf("%w: band %d (%s) starts at %d, expected %d", ErrInconsistentBands, i, b.Label, b.Min, next)
		}
		next = b.Max + 1
	}
	if next != 101 {
		return fmt.Errorf("%w: bands end at %d, expected 100", ErrInconsistentBands, next-1)
	}

	return nil
}
