package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/codeGROOVE-dev/linkmcp/pkg/credential"
)

// ErrNoCredential is returned when neither the request nor the server
// configuration yields LinkedIn credentials.
var ErrNoCredential = fmt.Errorf("%w: no credentials supplied; send a linkedin-session header, "+
	"a bearer token from POST /token, or configure %s", credential.ErrAuth,
	strings.Join(credential.EnvVars(), "/"))

type ctxKey int

const (
	ctxBearer ctxKey = iota
	ctxSessionPayload
)

// withRequestHeaders copies per-request credential headers into the context
// so tool handlers can see them. Installed on the streamable HTTP transport;
// stdio requests never carry these and fall through to the server source.
func withRequestHeaders(ctx context.Context, r *http.Request) context.Context {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			ctx = context.WithValue(ctx, ctxBearer, strings.TrimSpace(token))
		}
	}
	if payload := sessionHeaderValue(r); payload != "" {
		ctx = context.WithValue(ctx, ctxSessionPayload, payload)
	}
	return ctx
}

// sessionHeaderValue reads the session payload header under the spellings
// clients use. Underscored names are not subject to canonical MIME key
// normalization, so those are matched explicitly.
func sessionHeaderValue(r *http.Request) string {
	if v := r.Header.Get("Linkedin-Session"); v != "" {
		return v
	}
	for name, values := range r.Header {
		if strings.EqualFold(name, "linkedin_session") && len(values) > 0 {
			return values[0]
		}
	}
	return ""
}

// credentialFrom resolves the credential for one tool call. Resolution
// order: session payload header, bearer token, then the server's fallback
// source.
func (s *Server) credentialFrom(ctx context.Context) (*credential.Credential, error) {
	if payload, ok := ctx.Value(ctxSessionPayload).(string); ok {
		cred, err := credential.Parse(payload)
		if err != nil {
			return nil, fmt.Errorf("linkedin-session header: %w", err)
		}
		return cred, nil
	}

	if bearer, ok := ctx.Value(ctxBearer).(string); ok {
		return s.credentialFromBearer(bearer)
	}

	if s.source != nil {
		cred, err := s.source.Credential(ctx)
		if err != nil {
			return nil, err
		}
		if cred != nil {
			return cred, nil
		}
	}
	return nil, ErrNoCredential
}

// credentialFromBearer resolves a bearer token: a signed token referencing a
// registered session, a bare session ID, or a raw credential payload carried
// directly in the token, in that order.
func (s *Server) credentialFromBearer(bearer string) (*credential.Credential, error) {
	if s.signer != nil {
		if id, err := s.signer.Verify(bearer); err == nil {
			payload, ok := s.tokens.Get(id)
			if !ok {
				return nil, fmt.Errorf("%w: bearer token references an expired or unknown session",
					credential.ErrAuth)
			}
			return credential.Parse(payload)
		}
	}

	if payload, ok := s.tokens.Get(bearer); ok {
		return credential.Parse(payload)
	}

	cred, err := credential.Parse(bearer)
	if err != nil {
		if errors.Is(err, credential.ErrAuth) {
			return nil, fmt.Errorf("%w: bearer token is not a known session or a credential payload",
				credential.ErrAuth)
		}
		return nil, err
	}
	return cred, nil
}
