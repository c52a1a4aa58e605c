package voyager

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/linkmcp/pkg/credential"
)

const (
	defaultBaseURL = "https://www.linkedin.com"

	// Chrome user agent - Voyager varies behavior on UA heuristics.
	browserUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	acceptNormalizedJSON = "application/vnd.linkedin.normalized+json+2.1"
	restliVersion        = "2.0.0"
	defaultLocale        = "en_US"
	csrfPrefix           = "ajax:"

	requestTimeout = 30 * time.Second
)

// DirectClient replays the browser's request shape against Voyager JSON
// endpoints by hand: serialized cookie header, anti-forgery token, protocol
// and locale headers. It holds no session state beyond the credential it was
// built with, and returns raw un-typed JSON payloads.
type DirectClient struct {
	httpClient *http.Client
	cred       *credential.Credential
	logger     *slog.Logger
	base       string
	policy     retryPolicy
}

// DirectOption configures a DirectClient.
type DirectOption func(*DirectClient)

// WithDirectLogger sets a custom logger.
func WithDirectLogger(logger *slog.Logger) DirectOption {
	return func(c *DirectClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithDirectBaseURL overrides the upstream base URL.
func WithDirectBaseURL(base string) DirectOption {
	return func(c *DirectClient) { c.base = strings.TrimSuffix(base, "/") }
}

// WithDirectHTTPClient overrides the underlying HTTP client.
func WithDirectHTTPClient(httpClient *http.Client) DirectOption {
	return func(c *DirectClient) { c.httpClient = httpClient }
}

// NewDirect creates a direct-path client for the given credential.
func NewDirect(cred *credential.Credential, opts ...DirectOption) *DirectClient {
	c := &DirectClient{
		httpClient: &http.Client{Timeout: requestTimeout},
		cred:       cred,
		logger:     slog.Default(),
		base:       defaultBaseURL,
		policy:     defaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ProfileView fetches the raw profile-view payload for a public identifier.
func (c *DirectClient) ProfileView(ctx context.Context, publicID string) (map[string]any, error) {
	path := "/voyager/api/identity/profiles/" + url.PathEscape(publicID) + "/profileView"
	return c.getJSON(ctx, "profileView", path, nil)
}

// SearchPeople fetches a raw blended-search payload for a keyword query.
// count/start control upstream paging; the parser caps emitted rows
// independently of either.
func (c *DirectClient) SearchPeople(ctx context.Context, keywords string, count, start int) (map[string]any, error) {
	q := url.Values{}
	q.Set("keywords", keywords)
	q.Set("origin", "GLOBAL_SEARCH_HEADER")
	q.Set("count", strconv.Itoa(count))
	q.Set("start", strconv.Itoa(start))
	q.Set("filters", "List(resultType->PEOPLE)")
	q.Set("queryContext", "List(spellCorrectionEnabled->true)")
	return c.getJSON(ctx, "blendedSearch", "/voyager/api/search/blended", q)
}

// Probe makes one request to the current-user diagnostic endpoint without
// following redirects and reports the outcome verbatim. A 200 means the
// cookies still hold a session; a redirect to an auth wall means they do
// not. Interpretation is left to the caller.
func (c *DirectClient) Probe(ctx context.Context) (*Probe, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/voyager/api/me", http.NoBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cookie", c.cookieHeader())

	probeClient := &http.Client{
		Timeout: c.httpClient.Timeout,
		CheckRedirect: func(_ *http.Request, _ []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	resp, err := probeClient.Do(req)
	if err != nil {
		return nil, classifyTransportErr(err)
	}
	defer resp.Body.Close() //nolint:errcheck // intentional

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return nil, err
	}

	c.logger.DebugContext(ctx, "auth probe complete", "status", resp.StatusCode)
	return &Probe{
		Status:      resp.StatusCode,
		Location:    resp.Header.Get("Location"),
		BodyPreview: preview(body),
	}, nil
}

// getJSON performs a retried GET and decodes the body as JSON.
func (c *DirectClient) getJSON(ctx context.Context, op, path string, query url.Values) (map[string]any, error) {
	target := c.base + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	status := http.StatusOK
	body, err := c.policy.do(ctx, c.logger, op, func() ([]byte, error) {
		b, s, fetchErr := c.fetch(ctx, target)
		if s != 0 {
			status = s
		}
		return b, fetchErr
	})
	if err != nil {
		return nil, err
	}

	var payload map[string]any
	if jsonErr := json.Unmarshal(body, &payload); jsonErr != nil {
		return nil, fmt.Errorf("%s: response is not valid JSON: %w", op,
			&HTTPError{URL: target, StatusCode: status, Body: preview(body)})
	}
	return payload, nil
}

// fetch performs one request attempt, mapping failure statuses to HTTPError.
func (c *DirectClient) fetch(ctx context.Context, target string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return nil, 0, err
	}
	c.setVoyagerHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, classifyTransportErr(err)
	}
	defer resp.Body.Close() //nolint:errcheck // intentional

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, resp.StatusCode, &HTTPError{
			URL:        target,
			StatusCode: resp.StatusCode,
			Body:       preview(body),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
	return body, resp.StatusCode, nil
}

// setVoyagerHeaders decorates a request the way the browser does: ordered
// cookie header, protocol version, normalized-JSON accept, locale from the
// lang cookie, and the CSRF token reconstructed from JSESSIONID.
func (c *DirectClient) setVoyagerHeaders(req *http.Request) {
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Accept", acceptNormalizedJSON)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("X-Restli-Protocol-Version", restliVersion)
	req.Header.Set("X-Li-Lang", localeFromLangCookie(c.cred.CookieValue("lang")))
	req.Header.Set("Cookie", c.cookieHeader())

	if token := csrfToken(c.cred.JSESSIONID()); token != "" {
		req.Header.Set("Csrf-Token", token)
	}
}

// cookieHeader serializes the credential's cookies as "name=value" pairs
// joined by "; ", preserving their original order.
func (c *DirectClient) cookieHeader() string {
	cookies := c.cred.Cookies()
	pairs := make([]string, 0, len(cookies))
	for _, ck := range cookies {
		pairs = append(pairs, ck.Name+"="+ck.Value)
	}
	return strings.Join(pairs, "; ")
}

// csrfToken derives the anti-forgery token from an unquoted JSESSIONID,
// prefixing "ajax:" when the upstream export omitted it.
func csrfToken(jsessionID string) string {
	if jsessionID == "" {
		return ""
	}
	if strings.HasPrefix(jsessionID, csrfPrefix) {
		return jsessionID
	}
	return csrfPrefix + jsessionID
}

// localeFromLangCookie derives an X-Li-Lang value from LinkedIn's lang
// cookie (shaped like "v=2&lang=en-us"), defaulting to en_US.
func localeFromLangCookie(value string) string {
	if value == "" {
		return defaultLocale
	}
	lang := value
	if strings.ContainsAny(value, "=&") {
		lang = ""
		for part := range strings.SplitSeq(value, "&") {
			if after, ok := strings.CutPrefix(part, "lang="); ok {
				lang = after
				break
			}
		}
	}
	if lang == "" {
		return defaultLocale
	}
	parts := strings.SplitN(lang, "-", 2)
	if len(parts) == 2 {
		return parts[0] + "_" + strings.ToUpper(parts[1])
	}
	return lang
}

// parseRetryAfter converts a Retry-After header in seconds to a duration.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	secs, err := strconv.Atoi(value)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
