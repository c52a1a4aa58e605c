package credential

import (
	"context"
	"os"
)

// Source yields a credential from some backing location, or nil if the
// location has nothing to offer. A nil result is not an error.
type Source interface {
	Credential(ctx context.Context) (*Credential, error)
}

// Chain returns the credential from the first source that provides one.
func Chain(ctx context.Context, sources ...Source) (*Credential, error) {
	for _, src := range sources {
		cred, err := src.Credential(ctx)
		if err != nil {
			return nil, err
		}
		if cred != nil {
			return cred, nil
		}
	}
	return nil, nil //nolint:nilnil // no source had a credential, but this is not an error
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context) (*Credential, error)

// Credential calls f.
func (f SourceFunc) Credential(ctx context.Context) (*Credential, error) { return f(ctx) }

// StaticSource provides a fixed credential. Useful for testing or when the
// credential was already resolved by the caller.
type StaticSource struct {
	cred *Credential
}

// NewStaticSource creates a source that always returns cred.
func NewStaticSource(cred *Credential) *StaticSource {
	return &StaticSource{cred: cred}
}

// Credential returns the static credential.
func (s *StaticSource) Credential(_ context.Context) (*Credential, error) {
	return s.cred, nil
}

// envCookieVars maps environment variable names to cookie names. The order
// here fixes the cookie order of env-sourced credentials.
var envCookieVars = []struct {
	envVar string
	cookie string
}{
	{"LINKEDIN_LI_AT", "li_at"},
	{"LINKEDIN_JSESSIONID", "JSESSIONID"},
	{"LINKEDIN_LIDC", "lidc"},
	{"LINKEDIN_BCOOKIE", "bcookie"},
	{"LINKEDIN_LANG", "lang"},
}

// sessionEnvVar carries a whole credential payload (JSON or base64(JSON)),
// matching the wire form accepted by Parse.
const sessionEnvVar = "LINKEDIN_SESSION"

// EnvSource reads a credential from environment variables: either a full
// payload in LINKEDIN_SESSION, or individual cookie values.
type EnvSource struct{}

// Credential returns the credential assembled from the environment.
func (EnvSource) Credential(_ context.Context) (*Credential, error) {
	if payload := os.Getenv(sessionEnvVar); payload != "" {
		return Parse(payload)
	}

	var cookies []Cookie
	for _, v := range envCookieVars {
		if value := os.Getenv(v.envVar); value != "" {
			cookies = append(cookies, Cookie{Name: v.cookie, Value: value})
		}
	}
	if len(cookies) == 0 {
		if user, pass := os.Getenv("LINKEDIN_USERNAME"), os.Getenv("LINKEDIN_PASSWORD"); user != "" && pass != "" {
			return New(nil, user, pass)
		}
		return nil, nil //nolint:nilnil // no env vars set is not an error
	}
	return New(cookies, "", "")
}

// EnvVars returns the environment variable names this package consults.
// Useful for help messages.
func EnvVars() []string {
	vars := make([]string, 0, len(envCookieVars)+1)
	vars = append(vars, sessionEnvVar)
	for _, v := range envCookieVars {
		vars = append(vars, v.envVar)
	}
	return vars
}
