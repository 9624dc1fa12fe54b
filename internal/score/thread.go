package score

import (
	"math"

	"github.com/ppiankov/cyclotron/internal/model"
)

// threadConcernThreshold is the mean score below which a thread is flagged
const threadConcernThreshold = 50

// AnalyzeBatch analyzes each message in order, recording its position
func (s *Scorer) AnalyzeBatch(messages []string) []model.AnalysisResult {
	results := make([]model.AnalysisResult, len(messages))
	for i, msg := range messages {
		results[i] = s.Analyze(msg)
		results[i].Index = i
	}
	return results
}

// AnalyzeThread analyzes a conversation and aggregates it
func (s *Scorer) AnalyzeThread(messages []string) (*model.ThreadSummary, error) {
	if len(messages) == 0 {
		return nil, ErrEmptyThread
	}
	return Summarize(s.AnalyzeBatch(messages))
}

// Summarize aggregates already-computed results. Results are expected in
// message order; the caller owns that ordering.
func Summarize(results []model.AnalysisResult) (*model.ThreadSummary, error) {
	if len(results) == 0 {
		return nil, ErrEmptyThread
	}

	summary := &model.ThreadSummary{
		MessageCount:     len(results),
		PatternFrequency: make(map[model.Category]int),
		Results:          results,
	}

	scoreSum := 0
	for _, r := range results {
		scoreSum += r.Score
		summary.TotalManipulation += r.Manipulation.Score
		summary.TotalTruth += r.Truth.Score
		for _, m := range r.Manipulation.Matches {
			summary.PatternFrequency[m.Category]++
		}
	}

	summary.MeanScore = float64(scoreSum) / float64(len(results))
	summary.AverageScore = int(math.Floor(summary.MeanScore + 0.5))

	summary.DominantAlgorithm = model.AlgorithmTruth
	if summary.TotalManipulation > summary.TotalTruth {
		summary.DominantAlgorithm = model.AlgorithmDeceit
	}

	summary.Recommendation = ThreadHealthy
	if summary.MeanScore < threadConcernThreshold {
		summary.Recommendation = ThreadManipulative
	}

	return summary, nil
}
