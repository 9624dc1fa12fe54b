package model

import "time"

// Category names a manipulation pattern or truth signal class
type Category string

const (
	// Manipulation categories
	CategoryGaslighting     Category = "gaslighting"
	CategoryLoveBombing     Category = "loveBombing"
	CategoryFutureFaking    Category = "futureFaking"
	CategoryGuiltTripping   Category = "guiltTripping"
	CategoryStonewalling    Category = "stonewalling"
	CategoryDeflection      Category = "deflection"
	CategoryTriangulation   Category = "triangulation"
	CategoryVictimPlaying   Category = "victimPlaying"
	CategoryWordSalad       Category = "wordSalad"       // Detected by incoherence, not phrases
	CategorySilentTreatment Category = "silentTreatment" // Needs response timing, no phrases

	// Truth categories
	CategoryAccountability Category = "accountability"
	CategoryClarity        Category = "clarity"
	CategoryConsistency    Category = "consistency" // Measured over time, no phrases
	CategoryBoundaries     Category = "boundaries"
	CategoryDirectness     Category = "directness"
)

// Algorithm is the communication algorithm a message is judged to run on
type Algorithm string

const (
	AlgorithmDeceit Algorithm = "DECEIT"
	AlgorithmTruth  Algorithm = "TRUTH"
)

// Band is a labeled sub-range of the composite score, bounds inclusive
type Band struct {
	Min         int    `json:"min" yaml:"min"`
	Max         int    `json:"max" yaml:"max"`
	Label       string `json:"label" yaml:"label"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Contains reports whether score falls inside the band
func (b Band) Contains(score int) bool {
	return score >= b.Min && score <= b.Max
}

// Match is a single phrase hit. Repeated categories are not merged.
type Match struct {
	Category Category `json:"type"`
	Phrase   string   `json:"phrase"`
	Weight   int      `json:"severity"`
}

// Detection is the output of one detector (manipulation or truth)
type Detection struct {
	Score      int     `json:"score"`
	Matches    []Match `json:"patterns_found"`
	Confidence float64 `json:"confidence"`
}

// Categories returns the category of every match, in match order
func (d Detection) Categories() []Category {
	out := make([]Category, 0, len(d.Matches))
	for _, m := range d.Matches {
		out = append(out, m.Category)
	}
	return out
}

// Breakdown lists red and green flags for quick reading
type Breakdown struct {
	RedFlags        []Category `json:"red_flags"`
	GreenFlags      []Category `json:"green_flags"`
	PrimaryConcern  Category   `json:"primary_concern"`  // "none" when nothing matched
	PrimaryStrength Category   `json:"primary_strength"` // "none" when nothing matched
}

// CategoryNone marks an empty primary concern or strength
const CategoryNone Category = "none"

// AnalysisResult is the full output for one analyzed message
type AnalysisResult struct {
	Index     int       `json:"index"` // Position within a batch (0 for single analyses)
	Input     string    `json:"input"`
	Timestamp time.Time `json:"timestamp"`

	Score            int       `json:"consciousness_score"` // Composite, 0-100
	Level            string    `json:"consciousness_level"` // Band label
	LevelDescription string    `json:"consciousness_level_description,omitempty"`
	Algorithm        Algorithm `json:"algorithm_detected"`

	Manipulation Detection `json:"manipulation"`
	Truth        Detection `json:"truth"`

	FifteenDegreeTurns  int       `json:"fifteen_degree_turns"`
	RecommendedResponse string    `json:"recommended_response"`
	Analysis            Breakdown `json:"analysis"`
}

// ThreadSummary aggregates the results of an ordered conversation
type ThreadSummary struct {
	MessageCount      int              `json:"message_count"`
	MeanScore         float64          `json:"mean_consciousness"`
	AverageScore      int              `json:"average_consciousness"` // MeanScore rounded half up
	TotalManipulation int              `json:"total_manipulation_score"`
	TotalTruth        int              `json:"total_truth_score"`
	DominantAlgorithm Algorithm        `json:"dominant_algorithm"`
	PatternFrequency  map[Category]int `json:"pattern_frequency"`
	Results           []AnalysisResult `json:"individual_results"`
	Recommendation    string           `json:"recommendation"`

	Narrative *Narrative `json:"narrative,omitempty"` // Optional LLM narrative (never affects scores)
}

// Narrative contains an optional LLM-generated reading of a thread
// It is produced after scoring and is kept apart from every number above
type Narrative struct {
	Enabled   bool     `json:"enabled"`
	Provider  string   `json:"provider,omitempty"`
	Model     string   `json:"model,omitempty"`
	Strict    bool     `json:"strict"`
	SummaryMD string   `json:"summary_md,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
}
