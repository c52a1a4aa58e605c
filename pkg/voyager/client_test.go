package voyager

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/codeGROOVE-dev/linkmcp/pkg/credential"
)

func testCredential(t *testing.T) *credential.Credential {
	t.Helper()
	cred, err := credential.New([]credential.Cookie{
		{Name: "li_at", Value: "token123"},
		{Name: "JSESSIONID", Value: "\"ajax:456\""},
		{Name: "lang", Value: "v=2&lang=de-de"},
	}, "", "")
	if err != nil {
		t.Fatalf("credential.New: %v", err)
	}
	return cred
}

func miniProfilePayload(name string) map[string]any {
	return map[string]any{
		"included": []any{
			map[string]any{
				"$type":     "com.linkedin.voyager.identity.shared.MiniProfile",
				"firstName": name,
				"lastName":  "Direct",
			},
		},
	}
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encode response: %v", err)
	}
}

func TestDirectClientHeaders(t *testing.T) {
	var gotHeaders http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		writeJSON(t, w, miniProfilePayload("Ada"))
	}))
	defer srv.Close()

	client := NewDirect(testCredential(t),
		WithDirectBaseURL(srv.URL), WithDirectLogger(testLogger()))
	if _, err := client.ProfileView(context.Background(), "ada"); err != nil {
		t.Fatalf("ProfileView: %v", err)
	}

	tests := []struct {
		header string
		want   string
	}{
		{"Csrf-Token", "ajax:456"},
		{"X-Restli-Protocol-Version", "2.0.0"},
		{"Accept", "application/vnd.linkedin.normalized+json+2.1"},
		{"X-Li-Lang", "de_DE"},
		{"Cookie", "li_at=token123; JSESSIONID=ajax:456; lang=v=2&lang=de-de"},
	}
	for _, tt := range tests {
		if got := gotHeaders.Get(tt.header); got != tt.want {
			t.Errorf("%s = %q, want %q", tt.header, got, tt.want)
		}
	}
}

func TestDirectClientNonJSONResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte("<html>blocked</html>")) //nolint:errcheck // test server
	}))
	defer srv.Close()

	client := NewDirect(testCredential(t),
		WithDirectBaseURL(srv.URL), WithDirectLogger(testLogger()))
	_, err := client.ProfileView(context.Background(), "ada")
	if err == nil {
		t.Fatal("expected error for non-JSON body")
	}
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("error = %v, want HTTPError in the chain", err)
	}
	if httpErr.StatusCode != http.StatusAccepted {
		t.Errorf("StatusCode = %d, want the upstream status carried through", httpErr.StatusCode)
	}
	if !strings.Contains(httpErr.Body, "blocked") {
		t.Errorf("Body = %q, want the body preview", httpErr.Body)
	}
}

func TestDirectClientProbeRedirect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Location", "https://www.linkedin.com/uas/login")
		w.WriteHeader(http.StatusFound)
	}))
	defer srv.Close()

	client := NewDirect(testCredential(t),
		WithDirectBaseURL(srv.URL), WithDirectLogger(testLogger()))
	probe, err := client.Probe(context.Background())
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if probe.Status != http.StatusFound {
		t.Errorf("Status = %d, want %d", probe.Status, http.StatusFound)
	}
	if probe.Location != "https://www.linkedin.com/uas/login" {
		t.Errorf("Location = %q", probe.Location)
	}
}

func TestCSRFToken(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"ajax:456", "ajax:456"},
		{"456", "ajax:456"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := csrfToken(tt.in); got != tt.want {
			t.Errorf("csrfToken(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLocaleFromLangCookie(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"v=2&lang=en-us", "en_US"},
		{"v=2&lang=de-de", "de_DE"},
		{"lang=fr-fr", "fr_FR"},
		{"v=2", "en_US"},
		{"", "en_US"},
	}
	for _, tt := range tests {
		if got := localeFromLangCookie(tt.in); got != tt.want {
			t.Errorf("localeFromLangCookie(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSessionClientSendsReferer(t *testing.T) {
	var gotReferer, gotCookie string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReferer = r.Header.Get("Referer")
		gotCookie = r.Header.Get("Cookie")
		writeJSON(t, w, miniProfilePayload("Ada"))
	}))
	defer srv.Close()

	client, err := NewClient(testCredential(t),
		WithBaseURL(srv.URL), WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, _, err := client.Profile(context.Background(), "ada"); err != nil {
		t.Fatalf("Profile: %v", err)
	}

	wantReferer := srv.URL + "/in/ada/"
	if gotReferer != wantReferer {
		t.Errorf("Referer = %q, want %q", gotReferer, wantReferer)
	}
	if gotCookie == "" {
		t.Error("expected jar cookies on the request")
	}
}

func TestSessionClientRedirectLoopIsStaleSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, r.URL.Path, http.StatusFound)
	}))
	defer srv.Close()

	client, err := NewClient(testCredential(t),
		WithBaseURL(srv.URL), WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	client.policy = testPolicy()

	_, _, err = client.Profile(context.Background(), "ada")
	if !errors.Is(err, ErrStaleSession) {
		t.Errorf("Profile error = %v, want ErrStaleSession", err)
	}
}

func TestSessionClientLogin(t *testing.T) {
	var loginForm map[string]string
	mux := http.NewServeMux()
	mux.HandleFunc("GET /uas/authenticate", func(w http.ResponseWriter, _ *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: "\"ajax:seed\"", Path: "/"})
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /uas/authenticate", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		loginForm = map[string]string{
			"session_key":      r.PostFormValue("session_key"),
			"session_password": r.PostFormValue("session_password"),
		}
		http.SetCookie(w, &http.Cookie{Name: "li_at", Value: "fresh-token", Path: "/"})
		writeJSON(t, w, map[string]string{"login_result": "PASS"})
	})
	mux.HandleFunc("/voyager/api/identity/profiles/ada/profileView", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, miniProfilePayload("Ada"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cred, err := credential.New(nil, "user@example.com", "hunter2")
	if err != nil {
		t.Fatalf("credential.New: %v", err)
	}
	client, err := NewClient(cred, WithBaseURL(srv.URL), WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	if _, _, err := client.Profile(context.Background(), "ada"); err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if loginForm["session_key"] != "user@example.com" || loginForm["session_password"] != "hunter2" {
		t.Errorf("login form = %v", loginForm)
	}
}

func TestSessionClientLoginFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /uas/authenticate", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /uas/authenticate", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, map[string]string{"login_result": "CHALLENGE"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cred, err := credential.New(nil, "user@example.com", "wrong")
	if err != nil {
		t.Fatalf("credential.New: %v", err)
	}
	client, err := NewClient(cred, WithBaseURL(srv.URL), WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	_, _, err = client.Profile(context.Background(), "ada")
	if err == nil {
		t.Fatal("expected login failure")
	}
}

func noThrottle(context.Context) {}

func newTestFetcher(t *testing.T, baseURL string) *Fetcher {
	t.Helper()
	fetcher, err := NewFetcher(testCredential(t),
		WithFetcherBaseURL(baseURL),
		WithFetcherLogger(testLogger()),
		WithFetcherThrottle(noThrottle))
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	// Shrink retry delays so failure-path tests stay fast.
	fetcher.session.policy = testPolicy()
	fetcher.direct.policy = testPolicy()
	return fetcher
}

func TestFetcherProfileSessionPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, miniProfilePayload("Ada"))
	}))
	defer srv.Close()

	result, note, err := newTestFetcher(t, srv.URL).Profile(context.Background(), "ada")
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if note != "" {
		t.Errorf("note = %q, want empty for session path", note)
	}
	if result.FullName != "Ada Direct" {
		t.Errorf("FullName = %q", result.FullName)
	}
}

func TestFetcherProfileSectionEntityFirst(t *testing.T) {
	payload := map[string]any{
		"included": []any{
			map[string]any{
				"$type": "com.linkedin.voyager.identity.profile.Position",
				"title": "Analyst",
			},
			map[string]any{
				"$type":     "com.linkedin.voyager.identity.profile.Profile",
				"firstName": "Ada",
				"lastName":  "Lovelace",
				"headline":  "Countess of Computing",
			},
		},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, payload)
	}))
	defer srv.Close()

	result, note, err := newTestFetcher(t, srv.URL).Profile(context.Background(), "ada")
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if note != "" {
		t.Errorf("note = %q, want empty for session path", note)
	}
	if result.FullName != "Ada Lovelace" {
		t.Errorf("FullName = %q, want Ada Lovelace", result.FullName)
	}
	if len(result.Experience) != 1 || result.Experience[0].Title == nil || *result.Experience[0].Title != "Analyst" {
		t.Errorf("Experience = %+v, want the single Analyst entry", result.Experience)
	}
}

func TestTypedProfileObject(t *testing.T) {
	profile := map[string]any{
		"$type":     "com.linkedin.voyager.dash.identity.profile.Profile",
		"firstName": "Grace",
		"lastName":  "Hopper",
	}
	mini := map[string]any{
		"$type":     "com.linkedin.voyager.identity.shared.MiniProfile",
		"firstName": "Mini",
		"lastName":  "Only",
	}
	position := map[string]any{
		"$type": "com.linkedin.voyager.identity.profile.Position",
		"title": "Rear Admiral",
	}
	nameless := map[string]any{
		"$type": "com.linkedin.voyager.identity.profile.ProfileView",
	}

	tests := []struct {
		name string
		raw  map[string]any
		want string
	}{
		{"profile after sections", map[string]any{"included": []any{position, nameless, profile}}, "Grace Hopper"},
		{"mini before profile still prefers profile", map[string]any{"included": []any{mini, profile}}, "Grace Hopper"},
		{"sections only falls back to mini", map[string]any{"included": []any{position, mini}}, "Mini Only"},
		{"data block last resort", map[string]any{"data": map[string]any{"fullName": "Data Block"}}, "Data Block"},
		{"empty payload", map[string]any{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			typed := typedProfileObject(tt.raw)
			if got := firstOf(typed, profileNameAliases...); got != tt.want {
				t.Errorf("typedProfileObject name = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFetcherProfileFallsBackOnCSRFDenial(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte("CSRF check failed")) //nolint:errcheck // test server
			return
		}
		writeJSON(t, w, miniProfilePayload("Fallback"))
	}))
	defer srv.Close()

	result, note, err := newTestFetcher(t, srv.URL).Profile(context.Background(), "ada")
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if note != FallbackNote {
		t.Errorf("note = %q, want %q", note, FallbackNote)
	}
	if result.FullName != "Fallback Direct" {
		t.Errorf("FullName = %q", result.FullName)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestFetcherProfileCombinedError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, _, err := newTestFetcher(t, srv.URL).Profile(context.Background(), "ada")
	if err == nil {
		t.Fatal("expected combined error")
	}
}

func TestFetcherProfileFallbackParseFailureNamesBoth(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte("CSRF check failed")) //nolint:errcheck // test server
			return
		}
		writeJSON(t, w, map[string]any{"included": []any{}})
	}))
	defer srv.Close()

	_, _, err := newTestFetcher(t, srv.URL).Profile(context.Background(), "ada")
	if err == nil {
		t.Fatal("expected combined error")
	}
	if !errors.Is(err, ErrParse) {
		t.Errorf("error = %v, want ErrParse in the chain", err)
	}
	if !strings.Contains(err.Error(), "session client failed") {
		t.Errorf("error = %v, want the session failure named too", err)
	}
}

func TestFetcherProfileDoesNotFallBackOnOtherErrors(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, _, err := newTestFetcher(t, srv.URL).Profile(context.Background(), "ada")
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no fallback on 500)", calls)
	}
}

func TestFetcherSearchTrimsToLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, searchPayload(12))
	}))
	defer srv.Close()

	hits, note, err := newTestFetcher(t, srv.URL).Search(context.Background(), "gophers", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if note != "" {
		t.Errorf("note = %q, want empty", note)
	}
	if len(hits) != 5 {
		t.Errorf("hits = %d, want 5", len(hits))
	}
	if hits[0].PublicIdentifier != "person-0" {
		t.Errorf("first hit = %q, want person-0 (order preserved)", hits[0].PublicIdentifier)
	}
}

func TestFetcherSearchEmptyIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, map[string]any{"data": map[string]any{}})
	}))
	defer srv.Close()

	hits, _, err := newTestFetcher(t, srv.URL).Search(context.Background(), "nobody", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("hits = %d, want 0", len(hits))
	}
}

func TestFetcherSearchDegradesWhenDenied(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("CSRF check failed")) //nolint:errcheck // test server
	}))
	defer srv.Close()

	hits, note, err := newTestFetcher(t, srv.URL).Search(context.Background(), "gophers", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if note != DeniedSearchNote {
		t.Errorf("note = %q, want %q", note, DeniedSearchNote)
	}
	if hits == nil || len(hits) != 0 {
		t.Errorf("hits = %v, want empty non-nil slice", hits)
	}
}

func TestRandomThrottleRespectsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	randomThrottle(ctx)
	if elapsed := time.Since(start); elapsed > throttleMin {
		t.Errorf("throttle slept %v after context cancellation", elapsed)
	}
}
