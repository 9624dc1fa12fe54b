package atoms

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ppiankov/cyclotron/internal/cache"
	"github.com/ppiankov/cyclotron/internal/model"
	"github.com/ppiankov/cyclotron/internal/util"
	"github.com/ppiankov/cyclotron/internal/worker"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrNotFound is returned when the index source does not exist
	ErrNotFound = errors.New("atom index not found")

	// ErrDisallowed is returned when robots.txt forbids fetching the index
	ErrDisallowed = errors.New("atom index fetch disallowed by robots.txt")

	// ErrTooLarge is returned when the index exceeds the configured body limit
	ErrTooLarge = errors.New("atom index exceeds size limit")
)

const (
	maxFetchAttempts = 3
	retryBaseDelay   = 500 * time.Millisecond
)

// fetchSleepFunc is replaced in tests
var fetchSleepFunc = time.Sleep

// Fetcher loads atom indexes from disk or over HTTP
type Fetcher struct {
	httpClient *http.Client
	userAgent  string
	maxBytes   int64
	cache      cache.Cache         // nil disables caching
	limiter    *worker.HostLimiter // nil disables throttling
	robots     *util.RobotsChecker // nil skips robots.txt
	timeout    time.Duration       // Bounds one shared remote load; zero means none
	logger     *zap.Logger
	inflight   singleflight.Group // One remote fetch per source at a time
}

// NewFetcher creates a fetcher. c and limiter may be nil.
func NewFetcher(cfg model.IndexConfig, c cache.Cache, limiter *worker.HostLimiter, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}

	client := &http.Client{
		Timeout: cfg.Timeout,
		Transport: &http.Transport{
			Proxy: util.NewProxyFunc(cfg.HTTPProxy, cfg.HTTPSProxy),
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 3 {
				return fmt.Errorf("stopped after 3 redirects")
			}
			return nil
		},
	}

	maxBytes := cfg.MaxBodyBytes
	if maxBytes <= 0 {
		maxBytes = model.DefaultConfig().Index.MaxBodyBytes
	}

	f := &Fetcher{
		httpClient: client,
		userAgent:  cfg.UserAgent,
		maxBytes:   maxBytes,
		cache:      c,
		limiter:    limiter,
		timeout:    cfg.Timeout,
		logger:     logger,
	}
	if cfg.RespectRobots {
		f.robots = util.NewRobotsChecker(client, cfg.UserAgent, logger)
	}
	return f
}

// FetchIndex loads the index at source, an http(s) URL or a local path.
// Concurrent loads of the same URL share one fetch and one *Index. The
// shared fetch runs detached from any single caller, so a caller whose ctx
// ends early gets ctx.Err() while the others keep waiting.
func (f *Fetcher) FetchIndex(ctx context.Context, source string) (*Index, error) {
	if !isRemote(source) {
		raw, err := f.readLocal(source)
		if err != nil {
			return nil, err
		}
		return f.parse(source, raw)
	}

	ch := f.inflight.DoChan(source, func() (any, error) {
		loadCtx, cancel := f.detach(ctx)
		defer cancel()
		return f.loadRemote(loadCtx, source)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			f.logger.Debug("shared in-flight atom index fetch", zap.String("source", source))
		}
		return res.Val.(*Index), nil
	}
}

// detach keeps ctx values but drops its cancellation, bounding the result by
// the configured timeout instead
func (f *Fetcher) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	base := context.WithoutCancel(ctx)
	if f.timeout <= 0 {
		return context.WithCancel(base)
	}
	return context.WithTimeout(base, f.timeout)
}

func (f *Fetcher) loadRemote(ctx context.Context, source string) (*Index, error) {
	raw, cached, err := f.fetchRemote(ctx, source)
	if err != nil {
		return nil, err
	}

	ix, err := f.parse(source, raw)
	if err != nil {
		return nil, err
	}

	// Only indexes that parsed are worth keeping
	if !cached && f.cache != nil {
		if err := f.cache.Set(cache.IndexKey(source), raw, 0); err != nil {
			f.logger.Warn("failed to cache atom index", zap.String("source", source), zap.Error(err))
		}
	}
	return ix, nil
}

func (f *Fetcher) parse(source string, raw []byte) (*Index, error) {
	ix, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	f.logger.Info("atom index loaded",
		zap.String("source", source),
		zap.Int("atoms", ix.Len()))
	return ix, nil
}

func (f *Fetcher) readLocal(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}
	return raw, nil
}

// fetchRemote returns the raw index and whether it came from the cache
func (f *Fetcher) fetchRemote(ctx context.Context, rawURL string) ([]byte, bool, error) {
	if f.cache != nil {
		if raw, ok := f.cache.Get(cache.IndexKey(rawURL)); ok {
			f.logger.Debug("atom index cache hit", zap.String("source", rawURL))
			return raw, true, nil
		}
	}

	if f.robots != nil {
		allowed, err := f.robots.Allowed(ctx, rawURL)
		if err != nil {
			return nil, false, err
		}
		if !allowed {
			return nil, false, fmt.Errorf("%w: %s", ErrDisallowed, rawURL)
		}
	}

	var lastErr error
	for attempt := 1; attempt <= maxFetchAttempts; attempt++ {
		if attempt > 1 {
			delay := time.Duration(1<<(attempt-2)) * retryBaseDelay
			f.logger.Debug("retrying atom index fetch",
				zap.String("source", rawURL),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr))
			fetchSleepFunc(delay)
		}

		raw, err := f.get(ctx, rawURL)
		if err == nil {
			return raw, false, nil
		}
		lastErr = err
		if !isRetryableFetchError(err) || ctx.Err() != nil {
			break
		}
	}
	return nil, false, lastErr
}

// get performs a single rate-limited GET
func (f *Fetcher) get(ctx context.Context, rawURL string) ([]byte, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, rawURL); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, rawURL)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Status: resp.Status}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(raw)) > f.maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, f.maxBytes)
	}
	return raw, nil
}

// StatusError reports a non-2xx response other than 404
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status: %s", e.Status)
}

// isRetryableFetchError reports whether a failed GET is worth repeating:
// transport failures, 429 and 5xx responses
func isRetryableFetchError(err error) bool {
	if err == nil {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code == http.StatusTooManyRequests || statusErr.Code >= 500
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

func isRemote(source string) bool {
	lower := strings.ToLower(source)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
