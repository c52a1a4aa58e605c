package voyager

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"github.com/codeGROOVE-dev/linkmcp/pkg/credential"
	"github.com/codeGROOVE-dev/linkmcp/pkg/sessioncache"
)

const authPath = "/uas/authenticate"

// Client is the session-managing path to the Voyager API: it holds cookies
// in a jar, can establish a session from username and password, and sends
// the Referer and locale headers an interactive browser session would.
type Client struct {
	httpClient *http.Client
	cred       *credential.Credential
	logger     *slog.Logger
	cache      *sessioncache.Cache
	base       string
	policy     retryPolicy
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithBaseURL overrides the API origin. Used by tests.
func WithBaseURL(base string) Option {
	return func(c *Client) { c.base = strings.TrimSuffix(base, "/") }
}

// WithSessionCache persists established sessions across runs.
func WithSessionCache(cache *sessioncache.Cache) Option {
	return func(c *Client) { c.cache = cache }
}

// WithHTTPClient overrides the HTTP client. The cookie jar is installed on
// whatever client is in place when NewClient returns.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

// NewClient creates a session client for the given credential. Cookie
// credentials are loaded into the jar immediately; password credentials are
// exchanged for a session lazily on first use.
func NewClient(cred *credential.Credential, opts ...Option) (*Client, error) {
	c := &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		cred:       cred,
		logger:     slog.Default(),
		base:       defaultBaseURL,
		policy:     defaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(c)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	c.httpClient.Jar = jar

	if cred.HasCookies() {
		c.loadCookies(cred.Cookies())
	}
	return c, nil
}

// loadCookies installs credential cookies into the jar for the API origin.
func (c *Client) loadCookies(cookies []credential.Cookie) {
	origin, err := url.Parse(c.base)
	if err != nil {
		return
	}
	httpCookies := make([]*http.Cookie, 0, len(cookies))
	for _, ck := range cookies {
		if ck.Value == "" {
			continue
		}
		httpCookies = append(httpCookies, &http.Cookie{
			Name:  ck.Name,
			Value: ck.Value,
			Path:  "/",
		})
	}
	c.httpClient.Jar.SetCookies(origin, httpCookies)
}

// Profile fetches a profile view and returns the typed profile object
// alongside the raw payload.
func (c *Client) Profile(ctx context.Context, publicID string) (typed, raw map[string]any, err error) {
	if err := c.ensureSession(ctx); err != nil {
		return nil, nil, err
	}

	path := "/voyager/api/identity/profiles/" + url.PathEscape(publicID) + "/profileView"
	referer := c.base + "/in/" + url.PathEscape(publicID) + "/"
	raw, err = c.getJSON(ctx, "profileView", path, nil, referer)
	if err != nil {
		return nil, nil, err
	}
	return typedProfileObject(raw), raw, nil
}

// Search runs a blended people search and returns the raw payload.
func (c *Client) Search(ctx context.Context, keywords string, count, start int) (map[string]any, error) {
	if err := c.ensureSession(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("keywords", keywords)
	q.Set("origin", "GLOBAL_SEARCH_HEADER")
	q.Set("q", "all")
	q.Set("filters", "List(resultType->PEOPLE)")
	q.Set("count", fmt.Sprintf("%d", count))
	q.Set("start", fmt.Sprintf("%d", start))

	referer := c.base + "/search/results/people/?keywords=" + url.QueryEscape(keywords)
	return c.getJSON(ctx, "search", "/voyager/api/search/blended", q, referer)
}

// ensureSession makes sure the jar holds an authenticated session, logging
// in with username and password when cookies were not provided. Established
// sessions are persisted through the session cache when one is configured.
func (c *Client) ensureSession(ctx context.Context) error {
	if c.sessionCookie("li_at") != "" {
		return nil
	}
	if !c.cred.HasPassword() {
		return fmt.Errorf("%w: no session cookie and no password to establish one", credential.ErrAuth)
	}

	if c.cache == nil {
		cookies, err := c.login(ctx)
		if err != nil {
			return err
		}
		c.loadCookies(cookies)
		return nil
	}

	key := sessioncache.Key(c.cred.Username())
	data, err := c.cache.GetSet(ctx, key, func(ctx context.Context) ([]byte, error) {
		cookies, loginErr := c.login(ctx)
		if loginErr != nil {
			return nil, loginErr
		}
		return json.Marshal(cookies)
	}, c.cache.TTL())
	if err != nil {
		return err
	}

	var cookies []credential.Cookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return fmt.Errorf("decode cached session: %w", err)
	}
	c.loadCookies(cookies)
	c.logger.DebugContext(ctx, "session restored", "username", c.cred.Username())
	return nil
}

// login exchanges username and password for session cookies. A preliminary
// GET seeds the anonymous JSESSIONID the login form requires.
func (c *Client) login(ctx context.Context) ([]credential.Cookie, error) {
	seed, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+authPath, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create seed request: %w", err)
	}
	seed.Header.Set("User-Agent", browserUserAgent)
	seedResp, err := c.httpClient.Do(seed)
	if err != nil {
		return nil, fmt.Errorf("seed session: %w", err)
	}
	seedResp.Body.Close() //nolint:errcheck // intentional

	form := url.Values{}
	form.Set("session_key", c.cred.Username())
	form.Set("session_password", c.cred.Password())
	form.Set("JSESSIONID", c.sessionCookie("JSESSIONID"))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+authPath, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create login request: %w", err)
	}
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Restli-Protocol-Version", restliVersion)
	if token := csrfToken(c.sessionCookie("JSESSIONID")); token != "" {
		req.Header.Set("Csrf-Token", token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("authenticate: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // intentional

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: authenticate returned HTTP %d", credential.ErrAuth, resp.StatusCode)
	}

	var result struct {
		LoginResult string `json:"login_result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode login response: %w", err)
	}
	if result.LoginResult != "PASS" {
		return nil, fmt.Errorf("%w: login result %q", credential.ErrAuth, result.LoginResult)
	}

	c.logger.InfoContext(ctx, "session established", "username", c.cred.Username())
	return c.jarCookies(), nil
}

// jarCookies snapshots the jar's cookies for the API origin.
func (c *Client) jarCookies() []credential.Cookie {
	origin, err := url.Parse(c.base)
	if err != nil {
		return nil
	}
	jarred := c.httpClient.Jar.Cookies(origin)
	cookies := make([]credential.Cookie, 0, len(jarred))
	for _, ck := range jarred {
		cookies = append(cookies, credential.Cookie{Name: ck.Name, Value: ck.Value})
	}
	return cookies
}

// sessionCookie reads a cookie value from the jar, stripped of the double
// quotes LinkedIn wraps around JSESSIONID.
func (c *Client) sessionCookie(name string) string {
	origin, err := url.Parse(c.base)
	if err != nil {
		return ""
	}
	for _, ck := range c.httpClient.Jar.Cookies(origin) {
		if strings.EqualFold(ck.Name, name) {
			return strings.Trim(ck.Value, "\"")
		}
	}
	return ""
}

func (c *Client) getJSON(ctx context.Context, op, path string, query url.Values, referer string) (map[string]any, error) {
	target := c.base + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	status := http.StatusOK
	body, err := c.policy.do(ctx, c.logger, op, func() ([]byte, error) {
		b, s, fetchErr := c.fetch(ctx, target, referer)
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

func (c *Client) fetch(ctx context.Context, target, referer string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Accept", acceptNormalizedJSON)
	req.Header.Set("X-Restli-Protocol-Version", restliVersion)
	req.Header.Set("X-Li-Lang", localeFromLangCookie(c.sessionCookie("lang")))
	if referer != "" {
		req.Header.Set("Referer", referer)
	}
	if token := csrfToken(c.sessionCookie("JSESSIONID")); token != "" {
		req.Header.Set("Csrf-Token", token)
	}

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

// typedProfileObject picks the profile entity out of a raw payload: the
// first full profile entity wins, a mini-profile serves as fallback, and
// the data block is the last resort. Section entities (positions,
// educations, skills) share the profile package in their type tags, so a
// "profile" tag match alone is not enough: the entity must not be a
// section and must carry a name.
func typedProfileObject(raw map[string]any) map[string]any {
	included, _ := raw["included"].([]any)

	var mini map[string]any
	for _, item := range included {
		entity, ok := item.(map[string]any)
		if !ok {
			continue
		}
		tag := strings.ToLower(entityType(entity))
		switch {
		case strings.Contains(tag, "miniprofile"):
			if mini == nil {
				mini = entity
			}
		case strings.Contains(tag, "profile") && !sectionTag(tag):
			if firstOf(entity, profileNameAliases...) != "" {
				return entity
			}
		}
	}
	if mini != nil {
		return mini
	}
	if data, ok := raw["data"].(map[string]any); ok {
		return data
	}
	return map[string]any{}
}

// sectionTag reports whether a type tag names a profile section entity
// rather than the profile itself.
func sectionTag(tag string) bool {
	for _, needle := range []string{"position", "education", "skill"} {
		if strings.Contains(tag, needle) {
			return true
		}
	}
	return false
}
