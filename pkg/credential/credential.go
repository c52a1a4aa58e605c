// Package credential normalizes LinkedIn session material into a single
// immutable representation used by both transport paths.
//
// A credential payload arrives as a JSON object, a JSON string containing
// JSON, or a base64-encoded JSON string, and must carry either a bag of
// session cookies or a username/password pair.
package credential

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrAuth is returned when a credential payload is missing, malformed, or
// incomplete. Callers surface it as an unauthorized response and never retry.
var ErrAuth = errors.New("credential payload missing or malformed")

// Cookie is a single named session cookie. Order matters: cookies are
// serialized onto the wire in the order they were supplied.
type Cookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Credential holds either session cookies or a username/password pair.
// At least one form is always present. A Credential is immutable once
// constructed and lives only for the duration of one request.
type Credential struct {
	cookies  []Cookie
	username string
	password string
}

// HasCookies reports whether the credential carries session cookies.
func (c *Credential) HasCookies() bool { return len(c.cookies) > 0 }

// HasPassword reports whether the credential carries a username/password pair.
func (c *Credential) HasPassword() bool { return c.username != "" && c.password != "" }

// Username returns the account username, if present.
func (c *Credential) Username() string { return c.username }

// Password returns the account password, if present.
func (c *Credential) Password() string { return c.password }

// Cookies returns a copy of the cookie list in its original order.
func (c *Credential) Cookies() []Cookie {
	out := make([]Cookie, len(c.cookies))
	copy(out, c.cookies)
	return out
}

// CookieValue returns the value of the first cookie whose name matches
// case-insensitively, or "" if absent.
func (c *Credential) CookieValue(name string) string {
	for _, ck := range c.cookies {
		if strings.EqualFold(ck.Name, name) {
			return ck.Value
		}
	}
	return ""
}

// JSESSIONID returns the session identifier cookie value with any wrapping
// quotes already stripped. It doubles as LinkedIn's anti-forgery token, so
// downstream consumers rely on receiving the unquoted form.
func (c *Credential) JSESSIONID() string {
	return c.CookieValue("JSESSIONID")
}

// New constructs a credential from explicit parts. Cookie order is
// preserved; JSESSIONID values are unquoted.
func New(cookies []Cookie, username, password string) (*Credential, error) {
	cred := &Credential{
		cookies:  normalizeCookies(cookies),
		username: username,
		password: password,
	}
	if !cred.HasCookies() && !cred.HasPassword() {
		return nil, fmt.Errorf("%w: need cookies or username+password", ErrAuth)
	}
	return cred, nil
}

// FromMap constructs a cookie credential from a name→value map. Cookies are
// emitted in lexicographic name order since the map carries no ordering.
func FromMap(cookies map[string]string) (*Credential, error) {
	names := make([]string, 0, len(cookies))
	for name := range cookies {
		names = append(names, name)
	}
	sort.Strings(names)
	ordered := make([]Cookie, 0, len(names))
	for _, name := range names {
		if cookies[name] != "" {
			ordered = append(ordered, Cookie{Name: name, Value: cookies[name]})
		}
	}
	return New(ordered, "", "")
}

// Parse decodes a raw credential payload. Decoding order: direct JSON parse
// first; on failure, base64url-normalize and decode, then parse. Anything
// that does not yield cookies or a username+password pair fails with ErrAuth.
func Parse(raw string) (*Credential, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty payload", ErrAuth)
	}

	if cred, err := parseJSON([]byte(raw)); err == nil {
		return cred, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(normalizeBase64(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: payload is neither JSON nor base64(JSON)", ErrAuth)
	}
	cred, err := parseJSON(decoded)
	if err != nil {
		return nil, err
	}
	return cred, nil
}

// normalizeBase64 converts base64url variants to standard base64 and pads to
// a multiple of 4.
func normalizeBase64(s string) string {
	s = strings.ReplaceAll(s, "-", "+")
	s = strings.ReplaceAll(s, "_", "/")
	if rem := len(s) % 4; rem != 0 {
		s += strings.Repeat("=", 4-rem)
	}
	return s
}

// payload mirrors the accepted wire shape of a credential object.
type payload struct {
	Cookies  json.RawMessage `json:"cookies"`
	Username string          `json:"username"`
	Password string          `json:"password"`
}

func parseJSON(data []byte) (*Credential, error) {
	// A payload may be a JSON string that itself contains the JSON object
	// (double-encoded exports are common); unwrap one level.
	var inner string
	if err := json.Unmarshal(data, &inner); err == nil {
		data = []byte(inner)
	}

	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuth, err)
	}

	cookies, err := decodeCookies(p.Cookies)
	if err != nil {
		return nil, err
	}
	return New(cookies, p.Username, p.Password)
}

// decodeCookies accepts either an ordered array of {name,value} objects or a
// plain name→value object. The object form preserves member order by walking
// the decoder token stream instead of unmarshalling into a map.
func decodeCookies(raw json.RawMessage) ([]Cookie, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}

	if strings.HasPrefix(trimmed, "[") {
		var list []struct {
			Name  string `json:"name"`
			Key   string `json:"key"`
			Value string `json:"value"`
		}
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("%w: bad cookies array: %v", ErrAuth, err)
		}
		cookies := make([]Cookie, 0, len(list))
		for _, c := range list {
			name := c.Name
			if name == "" {
				name = c.Key
			}
			if name == "" || c.Value == "" {
				continue
			}
			cookies = append(cookies, Cookie{Name: name, Value: c.Value})
		}
		return cookies, nil
	}

	dec := json.NewDecoder(strings.NewReader(trimmed))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: bad cookies object: %v", ErrAuth, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("%w: cookies must be an array or object", ErrAuth)
	}
	var cookies []Cookie
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: bad cookies object: %v", ErrAuth, err)
		}
		name, _ := keyTok.(string)
		var value string
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("%w: cookie %q has a non-string value", ErrAuth, name)
		}
		if name != "" && value != "" {
			cookies = append(cookies, Cookie{Name: name, Value: value})
		}
	}
	return cookies, nil
}

// normalizeCookies strips the double quotes that LinkedIn cookie exports
// sometimes wrap around JSESSIONID values. The operation is idempotent:
// unquoted values pass through unchanged.
func normalizeCookies(cookies []Cookie) []Cookie {
	out := make([]Cookie, 0, len(cookies))
	for _, c := range cookies {
		if strings.EqualFold(c.Name, "JSESSIONID") {
			c.Value = stripQuotes(c.Value)
		}
		out = append(out, c)
	}
	return out
}

func stripQuotes(v string) string {
	if len(v) >= 2 && strings.HasPrefix(v, `"`) && strings.HasSuffix(v, `"`) {
		return v[1 : len(v)-1]
	}
	return v
}
