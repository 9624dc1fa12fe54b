package worker

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/ppiankov/cyclotron/internal/model"
	"go.uber.org/zap"
)

// maxMessageBytes bounds a single line when reading message files
const maxMessageBytes = 1 << 20

// Analyzer scores a single message
type Analyzer interface {
	Analyze(text string) model.AnalysisResult
}

// AnalyzeJob analyzes the message at Index
type AnalyzeJob struct {
	Index    int
	Text     string
	Analyzer Analyzer
}

// Execute runs the analysis unless the context is already done
func (j *AnalyzeJob) Execute(ctx context.Context) Result {
	if err := ctx.Err(); err != nil {
		return &AnalyzeResult{Index: j.Index, Error: err}
	}
	analysis := j.Analyzer.Analyze(j.Text)
	analysis.Index = j.Index
	return &AnalyzeResult{Index: j.Index, Analysis: analysis}
}

// AnalyzeResult is the outcome of an AnalyzeJob
type AnalyzeResult struct {
	Index    int
	Analysis model.AnalysisResult
	Error    error
}

// Position returns the message index
func (r *AnalyzeResult) Position() int {
	return r.Index
}

// GetError returns the job error, if any
func (r *AnalyzeResult) GetError() error {
	return r.Error
}

// BatchProcessor analyzes messages concurrently and returns them in input order
type BatchProcessor struct {
	analyzer    Analyzer
	concurrency int
	logger      *zap.Logger
}

// NewBatchProcessor creates a batch processor
func NewBatchProcessor(analyzer Analyzer, concurrency int, logger *zap.Logger) *BatchProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchProcessor{
		analyzer:    analyzer,
		concurrency: concurrency,
		logger:      logger,
	}
}

// ProcessMessages analyzes every message. Results are ordered by message
// index regardless of which worker finished first.
func (b *BatchProcessor) ProcessMessages(ctx context.Context, messages []string) ([]model.AnalysisResult, error) {
	if len(messages) == 0 {
		return []model.AnalysisResult{}, nil
	}

	pool := NewPool(ctx, b.concurrency)
	pool.Start()
	defer pool.Shutdown()

	go func() {
		for i, msg := range messages {
			if !pool.Submit(&AnalyzeJob{Index: i, Text: msg, Analyzer: b.analyzer}) {
				break
			}
		}
		pool.Close()
	}()

	results := make([]model.AnalysisResult, 0, len(messages))
	var firstErr error
	for res := range pool.Results() {
		if err := res.GetError(); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		results = append(results, res.(*AnalyzeResult).Analysis)
	}

	if firstErr == nil && len(results) != len(messages) {
		firstErr = ctx.Err()
		if firstErr == nil {
			firstErr = fmt.Errorf("analyzed %d of %d messages", len(results), len(messages))
		}
	}
	if firstErr != nil {
		return nil, fmt.Errorf("analyze batch: %w", firstErr)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Index < results[j].Index })

	b.logger.Debug("batch analyzed",
		zap.Int("messages", len(messages)),
		zap.Int("workers", b.concurrency))

	return results, nil
}

// ReadMessagesFromFile reads one message per line
func ReadMessagesFromFile(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	return ReadMessages(file)
}

// ReadMessages reads one message per line, skipping blank lines and #
// comments. Repeated messages are kept since repetition is part of a thread.
func ReadMessages(r io.Reader) ([]string, error) {
	var messages []string

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxMessageBytes)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		messages = append(messages, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan messages: %w", err)
	}

	return messages, nil
}
