package credential

import (
	"context"
	"fmt"
	"os"

	cookiemonster "github.com/MercuryEngineering/CookieMonster"
)

// FileSource reads cookies from a Netscape-format cookie file, the format
// produced by browser cookie-export extensions and curl.
type FileSource struct {
	path string
}

// NewFileSource creates a source backed by the cookie file at path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Credential parses the cookie file and keeps only linkedin.com cookies.
// A missing file is not an error; a present but unparsable file is.
func (s *FileSource) Credential(_ context.Context) (*Credential, error) {
	if s.path == "" {
		return nil, nil //nolint:nilnil // unset path is not an error
	}
	if _, err := os.Stat(s.path); err != nil {
		return nil, nil //nolint:nilnil // missing cookie file is not an error
	}

	parsed, err := cookiemonster.ParseFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("parse cookie file %s: %w", s.path, err)
	}

	var cookies []Cookie
	for _, c := range parsed {
		if !domainMatches(c.Domain, "linkedin.com") {
			continue
		}
		if c.Name == "" || c.Value == "" {
			continue
		}
		cookies = append(cookies, Cookie{Name: c.Name, Value: c.Value})
	}
	if len(cookies) == 0 {
		return nil, nil //nolint:nilnil // no linkedin cookies in file is not an error
	}
	return New(cookies, "", "")
}

func domainMatches(domain, suffix string) bool {
	for len(domain) > 0 && domain[0] == '.' {
		domain = domain[1:]
	}
	return domain == suffix || (len(domain) > len(suffix) && domain[len(domain)-len(suffix)-1] == '.' &&
		domain[len(domain)-len(suffix):] == suffix)
}
