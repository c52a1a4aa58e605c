package voyager

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrStaleSession is surfaced when LinkedIn bounces a call through an
// endless redirect chain, which in practice means the session cookies have
// expired and need replacing.
var ErrStaleSession = errors.New("too many redirects: session cookies are likely stale and need replacing")

// ErrParse indicates the upstream payload had an unexpected shape that the
// normalizer could not recover from. Profile fetches treat this as a hard
// failure; search never does.
var ErrParse = errors.New("unexpected upstream response shape")

// bodyPreviewLen bounds how much of an upstream body is echoed in errors.
const bodyPreviewLen = 300

// HTTPError is a failed or non-JSON upstream response, carrying the status
// and a truncated body preview.
type HTTPError struct {
	URL        string
	Body       string
	StatusCode int
	RetryAfter time.Duration
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d fetching %s", e.StatusCode, e.URL)
	}
	return fmt.Sprintf("HTTP %d fetching %s: %s", e.StatusCode, e.URL, e.Body)
}

// preview truncates an upstream body for inclusion in errors and probes.
func preview(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > bodyPreviewLen {
		s = s[:bodyPreviewLen]
	}
	return s
}

// isCSRFDenied reports whether err carries the specific anti-automation
// failure signature (403, or a body flagging a CSRF check) that makes the
// direct-path fallback worth attempting. Anything else is surfaced directly
// so unrelated problems are not masked behind a misleading retry.
func isCSRFDenied(err error) bool {
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		return false
	}
	if httpErr.StatusCode == http.StatusForbidden {
		return true
	}
	return strings.Contains(strings.ToUpper(httpErr.Body), "CSRF")
}

// classifyTransportErr maps low-level http.Client failures onto the
// package's error vocabulary. The redirect-loop case gets its own sentinel
// because the actionable fix (replace cookies) is not obvious from the raw
// url.Error text.
func classifyTransportErr(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "stopped after") && strings.Contains(err.Error(), "redirects") {
		return fmt.Errorf("%w: %v", ErrStaleSession, err)
	}
	return err
}
