package voyager

import (
	"context"
	"errors"
	"log/slog"
	randv2 "math/rand/v2"
	"net/http"
	"time"

	"github.com/codeGROOVE-dev/retry"
)

// retryPolicy bounds retries on the two transient failure modes Voyager is
// known for: rate limiting (429) and spurious not-found responses served
// right after session establishment (404). Everything else propagates
// immediately. Both transport paths share one policy.
type retryPolicy struct {
	rateLimitAttempts uint
	notFoundAttempts  int
	notFoundDelay     time.Duration
	baseDelay         time.Duration
	maxDelay          time.Duration
	maxJitter         time.Duration
}

func defaultRetryPolicy() retryPolicy {
	return retryPolicy{
		rateLimitAttempts: 5,
		notFoundAttempts:  2,
		notFoundDelay:     time.Second,
		baseDelay:         time.Second,
		maxDelay:          30 * time.Second,
		maxJitter:         500 * time.Millisecond,
	}
}

// do runs call under the retry policy. Retries are sequential and blocking;
// the caller's request is suspended for the full backoff duration. After the
// attempt budget is exhausted on a retryable error, one final unguarded call
// is made and its outcome returned as-is, which guarantees forward progress
// regardless of how the attempt accounting rounds.
func (p retryPolicy) do(ctx context.Context, logger *slog.Logger, op string, call func() ([]byte, error)) ([]byte, error) {
	attempts := 0
	wrapped := func() ([]byte, error) {
		attempts++
		return call()
	}

	data, err := retry.DoWithData(wrapped,
		retry.Context(ctx),
		retry.Attempts(p.rateLimitAttempts),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			switch retryableStatus(err) {
			case http.StatusTooManyRequests:
				return true
			case http.StatusNotFound:
				return attempts < p.notFoundAttempts
			default:
				return false
			}
		}),
		retry.DelayType(func(n uint, err error, _ *retry.Config) time.Duration {
			return p.delayFor(n, err)
		}),
		retry.OnRetry(func(n uint, err error) {
			logger.DebugContext(ctx, "retrying upstream call", "op", op, "attempt", n+1, "error", err)
		}),
	)
	if err == nil {
		return data, nil
	}
	if retryableStatus(err) == 0 {
		return nil, err
	}

	logger.DebugContext(ctx, "retry budget exhausted, making final call", "op", op, "error", err)
	return call()
}

// delayFor computes the sleep before retry n (0-based). Rate-limit delays
// honor the server-provided Retry-After when present; otherwise exponential
// backoff with jitter, capped at maxDelay. Not-found retries use a flat
// delay.
func (p retryPolicy) delayFor(n uint, err error) time.Duration {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.StatusCode == http.StatusNotFound {
			return p.notFoundDelay
		}
		if httpErr.RetryAfter > 0 {
			return httpErr.RetryAfter
		}
	}
	d := p.baseDelay << n
	if p.maxJitter > 0 {
		d += time.Duration(randv2.Int64N(int64(p.maxJitter) + 1))
	}
	return min(d, p.maxDelay)
}

// retryableStatus returns the HTTP status when err is a transient upstream
// failure the policy handles, and 0 otherwise.
func retryableStatus(err error) int {
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		return 0
	}
	switch httpErr.StatusCode {
	case http.StatusTooManyRequests, http.StatusNotFound:
		return httpErr.StatusCode
	default:
		return 0
	}
}
