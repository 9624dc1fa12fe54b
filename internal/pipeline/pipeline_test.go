package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ppiankov/cyclotron/internal/model"
	"github.com/ppiankov/cyclotron/internal/score"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap/zaptest"
)

const (
	msgScore10 = "you owe me"
	msgScore50 = ""
	msgScore90 = "i was wrong, i apologize, my mistake, i should have, i take responsibility, specifically, for example, to be clear"
)

func testConfig(t *testing.T) *model.Config {
	t.Helper()
	cfg := model.DefaultConfig()
	cfg.Cache.Enabled = false
	cfg.Concurrency.Workers = 4
	cfg.Index.Source = filepath.Join(t.TempDir(), "index.json")
	return cfg
}

func newTestPipeline(t *testing.T, cfg *model.Config) (*Pipeline, *bytes.Buffer) {
	t.Helper()
	p, err := NewPipeline(cfg, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewPipeline failed: %v", err)
	}
	var out bytes.Buffer
	p.renderer = NewRenderer(cfg.Output.IncludeFooter, &out)
	p.status = &out
	return p, &out
}

func writeTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestPipeline_AnalyzeText(t *testing.T) {
	p, _ := newTestPipeline(t, testConfig(t))

	result := p.AnalyzeText("you never listen to me, i was wrong about that")
	if result.Score != 5 || result.Level != "Critical" || result.Algorithm != model.AlgorithmDeceit {
		t.Errorf("Unexpected result: score=%d level=%s algorithm=%s", result.Score, result.Level, result.Algorithm)
	}
}

func TestPipeline_AnalyzeHTML(t *testing.T) {
	p, _ := newTestPipeline(t, testConfig(t))

	result, err := p.AnalyzeHTML(`<html><body><script>var x = "you owe me";</script><p>I take responsibility.</p></body></html>`)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if result.Manipulation.Score != 0 || result.Truth.Score != 1 {
		t.Errorf("Expected only the visible truth signal, got manip=%d truth=%d",
			result.Manipulation.Score, result.Truth.Score)
	}
}

func TestPipeline_AnalyzeThread(t *testing.T) {
	p, _ := newTestPipeline(t, testConfig(t))

	summary, err := p.AnalyzeThread(context.Background(), []string{msgScore10, msgScore50, msgScore90})
	if err != nil {
		t.Fatalf("AnalyzeThread failed: %v", err)
	}

	if summary.MessageCount != 3 || summary.AverageScore != 50 {
		t.Errorf("Expected 3 messages averaging 50, got %d/%d", summary.MessageCount, summary.AverageScore)
	}
	if summary.Recommendation != score.ThreadHealthy {
		t.Errorf("Expected healthy recommendation at mean 50, got %q", summary.Recommendation)
	}
	for i, res := range summary.Results {
		if res.Index != i {
			t.Errorf("Result %d has index %d", i, res.Index)
		}
	}
	if summary.Narrative != nil {
		t.Error("Expected no narrative without a provider")
	}

	// Same answer as the sequential scorer
	want, _ := score.NewScorer().AnalyzeThread([]string{msgScore10, msgScore50, msgScore90})
	if want.MeanScore != summary.MeanScore || want.TotalTruth != summary.TotalTruth {
		t.Errorf("Concurrent and sequential summaries differ: %+v vs %+v", summary, want)
	}
}

func TestPipeline_AnalyzeThread_Empty(t *testing.T) {
	p, _ := newTestPipeline(t, testConfig(t))

	_, err := p.AnalyzeThread(context.Background(), nil)
	if !errors.Is(err, score.ErrEmptyThread) || !errors.Is(err, score.ErrInvalidArgument) {
		t.Errorf("Expected ErrEmptyThread, got %v", err)
	}
}

func TestNewPipeline_PatternsFile(t *testing.T) {
	dir := t.TempDir()

	cfg := testConfig(t)
	cfg.Scoring.PatternsFile = filepath.Join(dir, "missing.yaml")
	if _, err := NewPipeline(cfg, nil); err == nil {
		t.Error("Expected error for missing patterns file")
	}

	cfg.Scoring.PatternsFile = writeTestFile(t, dir, "patterns.yaml", `
manipulation:
  - category: sarcasm
    phrases: ["oh great"]
severity:
  sarcasm: 3
`)
	p, err := NewPipeline(cfg, nil)
	if err != nil {
		t.Fatalf("NewPipeline failed: %v", err)
	}
	if result := p.AnalyzeText("Oh great, another meeting"); result.Manipulation.Score != 3 {
		t.Errorf("Expected custom pattern weight 3, got %d", result.Manipulation.Score)
	}
}

func TestNewPipeline_BadLLMProviderOnlyDisablesNarrative(t *testing.T) {
	cfg := testConfig(t)
	cfg.LLM.Provider = "carrier-pigeon"

	p, err := NewPipeline(cfg, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Expected pipeline despite bad provider, got %v", err)
	}
	if p.summarizer != nil {
		t.Error("Expected summarizer to be disabled")
	}
}

func TestPipeline_AnalyzeThread_Narrative(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/models":
			_, _ = w.Write([]byte(`{"object": "list", "data": [{"id": "gpt-4o-mini"}]}`))
		case "/chat/completions":
			_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
				Model: "gpt-4o-mini",
				Choices: []openai.ChatCompletionChoice{{
					Message: openai.ChatCompletionMessage{Role: "assistant", Content: "The thread averaged 50/100."},
				}},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	cfg := testConfig(t)
	cfg.LLM.Provider = "openai"
	cfg.LLM.APIKey = "test-key"
	cfg.LLM.BaseURL = server.URL
	cfg.LLM.Timeout = 5

	p, out := newTestPipeline(t, cfg)

	summary, err := p.AnalyzeThread(context.Background(), []string{msgScore10, msgScore50, msgScore90})
	if err != nil {
		t.Fatalf("AnalyzeThread failed: %v", err)
	}
	if summary.Narrative == nil || !summary.Narrative.Enabled {
		t.Fatalf("Expected enabled narrative, got %+v", summary.Narrative)
	}
	if summary.Narrative.SummaryMD != "The thread averaged 50/100." {
		t.Errorf("Unexpected narrative: %q", summary.Narrative.SummaryMD)
	}
	if summary.AverageScore != 50 {
		t.Errorf("Narrative changed the score: %d", summary.AverageScore)
	}

	dir := t.TempDir()
	mdPath := filepath.Join(dir, "thread.md")
	if err := p.RenderThread(summary, "", mdPath, true); err != nil {
		t.Fatalf("RenderThread failed: %v", err)
	}

	llmMD, err := os.ReadFile(filepath.Join(dir, "thread.llm.md"))
	if err != nil {
		t.Fatalf("Expected separate narrative file: %v", err)
	}
	if !strings.Contains(string(llmMD), "The thread averaged 50/100.") {
		t.Errorf("Unexpected narrative file:\n%s", llmMD)
	}
	if !strings.Contains(out.String(), "✓ Wrote LLM Narrative") {
		t.Errorf("Expected progress line, got:\n%s", out.String())
	}
}

func TestPipeline_RenderAnalysis(t *testing.T) {
	p, out := newTestPipeline(t, testConfig(t))
	result := p.AnalyzeText("you never listen to me, i was wrong about that")

	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "out", "analysis.json")
	mdPath := filepath.Join(dir, "analysis.md")

	if err := p.RenderAnalysis(result, jsonPath, mdPath, false); err != nil {
		t.Fatalf("RenderAnalysis failed: %v", err)
	}

	raw, err := os.ReadFile(jsonPath)
	if err != nil {
		t.Fatalf("Expected JSON output: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if decoded["consciousness_score"] != float64(5) || decoded["algorithm_detected"] != "DECEIT" {
		t.Errorf("Unexpected JSON fields: %v", decoded)
	}

	md, err := os.ReadFile(mdPath)
	if err != nil {
		t.Fatalf("Expected Markdown output: %v", err)
	}
	if !strings.Contains(string(md), "| **Consciousness Score** | 5/100 |") {
		t.Errorf("Unexpected markdown:\n%s", md)
	}

	if !strings.Contains(out.String(), "Consciousness:  5/100") {
		t.Errorf("Expected terminal summary, got:\n%s", out.String())
	}
	if strings.Contains(out.String(), "✓ Wrote") {
		t.Error("Expected no progress lines when not verbose")
	}
}

func TestReadThreadFile(t *testing.T) {
	dir := t.TempDir()

	text := writeTestFile(t, dir, "thread.txt", "# exported chat\nyou owe me\n\ni take responsibility\n")
	messages, err := ReadThreadFile(text)
	if err != nil {
		t.Fatalf("ReadThreadFile failed: %v", err)
	}
	if len(messages) != 2 || messages[0] != "you owe me" {
		t.Errorf("Unexpected text messages: %q", messages)
	}

	html := writeTestFile(t, dir, "thread.HTML", "<div>you owe me</div><div>i take responsibility</div>")
	messages, err = ReadThreadFile(html)
	if err != nil {
		t.Fatalf("ReadThreadFile failed: %v", err)
	}
	if len(messages) != 2 || messages[1] != "i take responsibility" {
		t.Errorf("Unexpected html messages: %q", messages)
	}

	if _, err := ReadThreadFile(filepath.Join(dir, "missing.html")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestPipeline_LoadAtoms(t *testing.T) {
	cfg := testConfig(t)
	if err := os.WriteFile(cfg.Index.Source, []byte(`{"atoms":[{"name":"boot","path":"a/boot.py","type":"function"}]}`), 0644); err != nil {
		t.Fatal(err)
	}
	p, _ := newTestPipeline(t, cfg)

	ix, err := p.LoadAtoms(context.Background(), "")
	if err != nil {
		t.Fatalf("LoadAtoms failed: %v", err)
	}
	if ix.Len() != 1 {
		t.Errorf("Expected 1 atom, got %d", ix.Len())
	}
}
