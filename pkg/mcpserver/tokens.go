package mcpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/codeGROOVE-dev/linkmcp/pkg/credential"
)

// Signer errors.
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
)

// Signer issues and verifies HS256-signed bearer tokens whose subject is a
// token store session ID.
type Signer struct {
	secret []byte
}

// NewSigner creates a signer with the given HMAC secret.
func NewSigner(secret []byte) *Signer {
	return &Signer{secret: secret}
}

// Generate creates a signed token for the given session ID.
func (s *Signer) Generate(sessionID string, expiresIn time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": sessionID,
		"iat": now.Unix(),
		"exp": now.Add(expiresIn).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify validates a token and extracts the session ID from the "sub" claim.
func (s *Signer) Verify(tokenString string) (sessionID string, err error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	return sub, nil
}

type tokenRequest struct {
	Session string `json:"session"`
}

type tokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expiresAt"`
}

// handleToken exchanges a credential payload for a bearer token. The payload
// is validated before registration so a bad session fails loudly here rather
// than on the first tool call.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.Session == "" {
		http.Error(w, "session is required", http.StatusBadRequest)
		return
	}

	if _, err := credential.Parse(req.Session); err != nil {
		s.logger.WarnContext(r.Context(), "token registration rejected", "error", err)
		http.Error(w, "session payload is not a valid credential", http.StatusBadRequest)
		return
	}

	id := s.tokens.Put(req.Session, s.tokenTTL)
	token := id
	if s.signer != nil {
		signed, err := s.signer.Generate(id, s.tokenTTL)
		if err != nil {
			s.tokens.Delete(id)
			s.logger.ErrorContext(r.Context(), "token signing failed", "error", err)
			http.Error(w, "token signing failed", http.StatusInternalServerError)
			return
		}
		token = signed
	}

	s.logger.InfoContext(r.Context(), "session registered", "sessions", s.tokens.Count())

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(tokenResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(s.tokenTTL).Format(time.RFC3339),
	}); err != nil {
		s.logger.ErrorContext(r.Context(), "encode token response", "error", err)
	}
}
