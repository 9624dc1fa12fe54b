package atoms

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/cyclotron/internal/cache"
	"github.com/ppiankov/cyclotron/internal/model"
	"github.com/ppiankov/cyclotron/internal/worker"
	"go.uber.org/zap/zaptest"
)

const sampleIndex = `{
  "total_atoms": 5,
  "last_updated": 1700000000,
  "atoms": [
    {"name": "boot_sequence", "path": "core/boot.py", "type": "function"},
    {"name": "Verifier", "path": "core/boot_protocol.py", "type": "class"},
    {"name": "send_email", "path": "mail/send.py", "type": "function"},
    {"name": "dashboard", "path": "ui/boot/dashboard.py", "type": "module"},
    {"name": "BOOT_FLAG", "path": "config/flags.py", "type": "constant"}
  ]
}`

func mustParse(t *testing.T, raw string) *Index {
	t.Helper()
	ix, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return ix
}

func names(atoms []model.Atom) []string {
	out := make([]string, len(atoms))
	for i, a := range atoms {
		out[i] = a.Name
	}
	return out
}

func TestIndex_Search_NameMatchesFirst(t *testing.T) {
	ix := mustParse(t, sampleIndex)

	got := names(ix.Search("BOOT", SearchOptions{}))
	// name matches in index order, then path-only matches in index order
	want := []string{"boot_sequence", "BOOT_FLAG", "Verifier", "dashboard"}

	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestIndex_Search_TypeAndLimit(t *testing.T) {
	ix := mustParse(t, sampleIndex)

	got := ix.Search("boot", SearchOptions{Type: "function"})
	if len(got) != 1 || got[0].Name != "boot_sequence" {
		t.Errorf("expected only boot_sequence, got %v", names(got))
	}

	got = ix.Search("", SearchOptions{Limit: 2})
	if len(got) != 2 {
		t.Errorf("expected 2 results with limit, got %d", len(got))
	}

	if got := ix.Search("nothing-like-this", SearchOptions{}); len(got) != 0 {
		t.Errorf("expected no results, got %v", names(got))
	}
}

func TestIndex_Search_DefaultLimit(t *testing.T) {
	var b strings.Builder
	b.WriteString(`{"atoms":[`)
	for i := 0; i < 30; i++ {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, `{"name":"atom%d","path":"p/%d.go","type":"function"}`, i, i)
	}
	b.WriteString(`]}`)

	ix := mustParse(t, b.String())
	if got := ix.Search("atom", SearchOptions{}); len(got) != DefaultSearchLimit {
		t.Errorf("expected %d results, got %d", DefaultSearchLimit, len(got))
	}
}

func TestIndex_Stats(t *testing.T) {
	ix := mustParse(t, sampleIndex)
	stats := ix.Stats()

	if stats.TotalAtoms != 5 {
		t.Errorf("expected 5 atoms, got %d", stats.TotalAtoms)
	}
	if stats.Types["function"] != 2 || stats.Types["class"] != 1 {
		t.Errorf("unexpected type counts: %v", stats.Types)
	}
	if !stats.LastUpdated.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("unexpected last updated: %v", stats.LastUpdated)
	}

	withHeader := mustParse(t, `{"total_atoms": 900, "atoms_by_type": {"class": 400, "function": 500}, "atoms": []}`)
	stats = withHeader.Stats()
	if stats.TotalAtoms != 900 || stats.Types["function"] != 500 {
		t.Errorf("expected header counts, got %+v", stats)
	}
}

func TestParse_Invalid(t *testing.T) {
	if _, err := Parse([]byte("{not json")); err == nil {
		t.Error("expected parse error")
	}
}

func TestFetcher_FetchIndex_Local(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.json")
	if err := os.WriteFile(path, []byte(sampleIndex), 0644); err != nil {
		t.Fatal(err)
	}

	f := NewFetcher(model.DefaultConfig().Index, nil, nil, zaptest.NewLogger(t))
	ix, err := f.FetchIndex(context.Background(), path)
	if err != nil {
		t.Fatalf("FetchIndex failed: %v", err)
	}
	if ix.Len() != 5 {
		t.Errorf("expected 5 atoms, got %d", ix.Len())
	}

	_, err = f.FetchIndex(context.Background(), filepath.Join(t.TempDir(), "missing.json"))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func testIndexConfig() model.IndexConfig {
	cfg := model.DefaultConfig().Index
	cfg.Timeout = 5 * time.Second
	cfg.RespectRobots = false
	return cfg
}

func TestFetcher_FetchIndex_RemoteCached(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if ua := r.Header.Get("User-Agent"); !strings.HasPrefix(ua, "Cyclotron/") {
			t.Errorf("unexpected User-Agent: %s", ua)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, sampleIndex)
	}))
	defer server.Close()

	c := cache.NewMemoryCache(time.Minute, time.Minute)
	f := NewFetcher(testIndexConfig(), c, worker.NewHostLimiter(100, 5), zaptest.NewLogger(t))

	for i := 0; i < 3; i++ {
		ix, err := f.FetchIndex(context.Background(), server.URL+"/index.json")
		if err != nil {
			t.Fatalf("FetchIndex failed: %v", err)
		}
		if ix.Len() != 5 {
			t.Errorf("expected 5 atoms, got %d", ix.Len())
		}
	}

	if hits.Load() != 1 {
		t.Errorf("expected a single remote fetch, got %d", hits.Load())
	}
}

func TestFetcher_FetchIndex_InvalidNotCached(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = fmt.Fprint(w, "<html>oops</html>")
	}))
	defer server.Close()

	c := cache.NewMemoryCache(time.Minute, time.Minute)
	f := NewFetcher(testIndexConfig(), c, nil, nil)

	for i := 0; i < 2; i++ {
		if _, err := f.FetchIndex(context.Background(), server.URL); err == nil {
			t.Fatal("expected parse error")
		}
	}
	if hits.Load() != 2 {
		t.Errorf("expected invalid index to be refetched, got %d hits", hits.Load())
	}
}

func TestFetcher_FetchIndex_SharedFetchOutlivesCancelledCaller(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			close(started)
		}
		<-release
		_, _ = fmt.Fprint(w, sampleIndex)
	}))
	defer server.Close()
	var releaseOnce sync.Once
	unblock := func() { releaseOnce.Do(func() { close(release) }) }
	defer unblock()

	f := NewFetcher(testIndexConfig(), nil, nil, zaptest.NewLogger(t))
	source := server.URL + "/index.json"

	shortCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	shortErr := make(chan error, 1)
	go func() {
		_, err := f.FetchIndex(shortCtx, source)
		shortErr <- err
	}()
	<-started

	type outcome struct {
		ix  *Index
		err error
	}
	long := make(chan outcome, 1)
	go func() {
		ix, err := f.FetchIndex(context.Background(), source)
		long <- outcome{ix, err}
	}()
	// Give the second caller time to join the in-flight fetch
	time.Sleep(50 * time.Millisecond)

	cancel()
	select {
	case err := <-shortErr:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled for the cancelled caller, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled caller did not return")
	}

	unblock()
	select {
	case got := <-long:
		if got.err != nil {
			t.Fatalf("expected the live caller to succeed, got %v", got.err)
		}
		if got.ix.Len() != 5 {
			t.Errorf("expected 5 atoms, got %d", got.ix.Len())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("live caller did not return")
	}
}

func noSleep(t *testing.T) {
	t.Helper()
	orig := fetchSleepFunc
	fetchSleepFunc = func(time.Duration) {}
	t.Cleanup(func() { fetchSleepFunc = orig })
}

func TestFetcher_FetchIndex_RemoteErrors(t *testing.T) {
	noSleep(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing.json":
			w.WriteHeader(http.StatusNotFound)
		case "/broken.json":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			_, _ = fmt.Fprint(w, sampleIndex)
		}
	}))
	defer server.Close()

	cfg := testIndexConfig()
	f := NewFetcher(cfg, nil, nil, nil)

	if _, err := f.FetchIndex(context.Background(), server.URL+"/missing.json"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := f.FetchIndex(context.Background(), server.URL+"/broken.json"); err == nil {
		t.Error("expected error for 500")
	}

	cfg.MaxBodyBytes = 10
	small := NewFetcher(cfg, nil, nil, nil)
	if _, err := small.FetchIndex(context.Background(), server.URL+"/index.json"); !errors.Is(err, ErrTooLarge) {
		t.Errorf("expected ErrTooLarge, got %v", err)
	}
}

func TestFetcher_FetchIndex_RobotsDisallowed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			_, _ = fmt.Fprint(w, "User-agent: *\nDisallow: /\n")
			return
		}
		_, _ = fmt.Fprint(w, sampleIndex)
	}))
	defer server.Close()

	cfg := testIndexConfig()
	cfg.RespectRobots = true
	f := NewFetcher(cfg, nil, nil, nil)

	if _, err := f.FetchIndex(context.Background(), server.URL+"/index.json"); !errors.Is(err, ErrDisallowed) {
		t.Errorf("expected ErrDisallowed, got %v", err)
	}
}

func TestFetcher_FetchIndex_RetriesTransient(t *testing.T) {
	noSleep(t)

	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch attempts.Add(1) {
		case 1:
			w.WriteHeader(http.StatusServiceUnavailable)
		case 2:
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			_, _ = fmt.Fprint(w, sampleIndex)
		}
	}))
	defer server.Close()

	f := NewFetcher(testIndexConfig(), nil, nil, zaptest.NewLogger(t))
	ix, err := f.FetchIndex(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Expected success after retries, got %v", err)
	}
	if ix.Len() != 5 {
		t.Errorf("expected 5 atoms, got %d", ix.Len())
	}
	if attempts.Load() != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts.Load())
	}
}

func TestFetcher_FetchIndex_RetriesExhausted(t *testing.T) {
	noSleep(t)

	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	f := NewFetcher(testIndexConfig(), nil, nil, nil)
	_, err := f.FetchIndex(context.Background(), server.URL)

	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != http.StatusBadGateway {
		t.Fatalf("Expected StatusError 502, got %v", err)
	}
	if attempts.Load() != maxFetchAttempts {
		t.Errorf("Expected %d attempts, got %d", maxFetchAttempts, attempts.Load())
	}
}

func TestFetcher_FetchIndex_NotFoundNotRetried(t *testing.T) {
	noSleep(t)

	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	f := NewFetcher(testIndexConfig(), nil, nil, nil)
	if _, err := f.FetchIndex(context.Background(), server.URL); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
	if attempts.Load() != 1 {
		t.Errorf("Expected a single attempt, got %d", attempts.Load())
	}
}

func TestIsRetryableFetchError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"nil", nil, false},
		{"503", &StatusError{Code: 503, Status: "503 Service Unavailable"}, true},
		{"500 wrapped", fmt.Errorf("load: %w", &StatusError{Code: 500}), true},
		{"429", &StatusError{Code: 429}, true},
		{"403", &StatusError{Code: 403}, false},
		{"not found", ErrNotFound, false},
		{"too large", ErrTooLarge, false},
		{"transport", fmt.Errorf("fetch: %w", &url.Error{Op: "Get", URL: "http://x", Err: errors.New("connection refused")}), true},
		{"plain", errors.New("read body: unexpected EOF"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryableFetchError(tt.err); got != tt.retryable {
				t.Errorf("isRetryableFetchError(%v) = %v, want %v", tt.err, got, tt.retryable)
			}
		})
	}
}

func TestIsRemote(t *testing.T) {
	tests := map[string]bool{
		"https://example.com/index.json": true,
		"HTTP://example.com/index.json":  true,
		".cyclotron_atoms/index.json":    false,
		"/abs/path/index.json":           false,
	}
	for in, want := range tests {
		if got := isRemote(in); got != want {
			t.Errorf("isRemote(%q) = %v, want %v", in, got, want)
		}
	}
}
