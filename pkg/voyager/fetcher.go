package voyager

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/codeGROOVE-dev/linkmcp/pkg/credential"
	"github.com/codeGROOVE-dev/linkmcp/pkg/sessioncache"
)

// FallbackNote marks results that came through the direct path after the
// session client was denied, so callers can surface the provenance.
const FallbackNote = "retrieved via direct API request after the session client was denied"

// DeniedSearchNote accompanies an empty search result when LinkedIn denied
// the search outright. Search degrades gracefully instead of erroring.
const DeniedSearchNote = "search was denied by LinkedIn for this account; no results available"

// Pacing between requests. Voyager tolerates occasional bursts badly, so
// each fetch waits a randomized interval first.
const (
	throttleMin = 300 * time.Millisecond
	throttleMax = 1200 * time.Millisecond
)

// Fetcher coordinates the two transport paths: the session client is tried
// first, and a hand-built direct request takes over only when the session
// path is denied with a 403 or CSRF rejection. Everything else fails as-is.
type Fetcher struct {
	session  *Client
	direct   *DirectClient
	logger   *slog.Logger
	throttle func(ctx context.Context)
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*fetcherConfig)

type fetcherConfig struct {
	logger   *slog.Logger
	cache    *sessioncache.Cache
	base     string
	throttle func(ctx context.Context)
}

// WithFetcherLogger sets the logger for the fetcher and both clients.
func WithFetcherLogger(logger *slog.Logger) FetcherOption {
	return func(cfg *fetcherConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithFetcherBaseURL overrides the API origin for both paths. Used by tests.
func WithFetcherBaseURL(base string) FetcherOption {
	return func(cfg *fetcherConfig) { cfg.base = base }
}

// WithFetcherSessionCache persists password-established sessions.
func WithFetcherSessionCache(cache *sessioncache.Cache) FetcherOption {
	return func(cfg *fetcherConfig) { cfg.cache = cache }
}

// WithFetcherThrottle replaces the randomized pre-request pause. Tests use
// this to run without sleeping.
func WithFetcherThrottle(throttle func(ctx context.Context)) FetcherOption {
	return func(cfg *fetcherConfig) { cfg.throttle = throttle }
}

// NewFetcher builds both transport paths for the given credential.
func NewFetcher(cred *credential.Credential, opts ...FetcherOption) (*Fetcher, error) {
	cfg := &fetcherConfig{
		logger:   slog.Default(),
		throttle: randomThrottle,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	sessionOpts := []Option{WithLogger(cfg.logger)}
	directOpts := []DirectOption{WithDirectLogger(cfg.logger)}
	if cfg.base != "" {
		sessionOpts = append(sessionOpts, WithBaseURL(cfg.base))
		directOpts = append(directOpts, WithDirectBaseURL(cfg.base))
	}
	if cfg.cache != nil {
		sessionOpts = append(sessionOpts, WithSessionCache(cfg.cache))
	}
	session, err := NewClient(cred, sessionOpts...)
	if err != nil {
		return nil, err
	}

	return &Fetcher{
		session:  session,
		direct:   NewDirect(cred, directOpts...),
		logger:   cfg.logger,
		throttle: cfg.throttle,
	}, nil
}

// Profile fetches and normalizes one profile. The returned note is empty
// for the session path and FallbackNote when the direct path served the
// result.
func (f *Fetcher) Profile(ctx context.Context, publicID string) (*ProfileResult, string, error) {
	f.throttle(ctx)

	typed, raw, err := f.session.Profile(ctx, publicID)
	if err == nil {
		result, parseErr := ParseProfile(typed, raw)
		return result, "", parseErr
	}
	if !isCSRFDenied(err) {
		return nil, "", err
	}

	f.logger.WarnContext(ctx, "session client denied, retrying with direct request",
		"public_id", publicID, "error", err)

	raw, directErr := f.direct.ProfileView(ctx, publicID)
	if directErr != nil {
		return nil, "", combinedErr("profile", err, directErr)
	}
	result, parseErr := ParseRawProfile(raw)
	if parseErr != nil {
		return nil, "", combinedErr("profile", err, parseErr)
	}
	return result, FallbackNote, nil
}

// Search runs a people search and returns up to limit rows. The returned
// note follows the same convention as Profile. An empty result set is not
// an error.
func (f *Fetcher) Search(ctx context.Context, query string, limit int) ([]SearchHit, string, error) {
	f.throttle(ctx)

	raw, err := f.session.Search(ctx, query, limit, 0)
	if err == nil {
		return trimHits(ParseSearchHits(raw), limit), "", nil
	}
	if !isCSRFDenied(err) {
		return nil, "", err
	}

	f.logger.WarnContext(ctx, "session client denied, retrying with direct request",
		"query", query, "error", err)

	raw, directErr := f.direct.SearchPeople(ctx, query, limit, 0)
	if directErr != nil {
		f.logger.WarnContext(ctx, "search denied on both paths, returning empty result",
			"query", query, "error", combinedErr("search", err, directErr))
		return []SearchHit{}, DeniedSearchNote, nil
	}
	return trimHits(ParseSearchHits(raw), limit), FallbackNote, nil
}

// Probe reports the raw outcome of a non-redirecting /voyager/api/me
// request without interpretation.
func (f *Fetcher) Probe(ctx context.Context) (*Probe, error) {
	return f.direct.Probe(ctx)
}

func trimHits(hits []SearchHit, limit int) []SearchHit {
	if limit > 0 && len(hits) > limit {
		return hits[:limit]
	}
	return hits
}

func combinedErr(op string, sessionErr, directErr error) error {
	return fmt.Errorf("%s: session client failed (%v); direct request also failed: %w",
		op, sessionErr, directErr)
}

func randomThrottle(ctx context.Context) {
	delay := throttleMin + time.Duration(rand.Int63n(int64(throttleMax-throttleMin))) //nolint:gosec // jitter, not crypto
	select {
	case <-ctx.Done():
	case <-time.After(delay):
	}
}
