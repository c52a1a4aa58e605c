package credential

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/browserutils/kooky"
	_ "github.com/browserutils/kooky/browser/all" // Import all browser cookie stores
	"github.com/browserutils/kooky/browser/firefox"
)

const cookieDomain = "linkedin.com"

// essentialCookies are the cookie names a Voyager session actually needs.
var essentialCookies = []string{"li_at", "JSESSIONID", "lidc", "bcookie", "lang"}

// BrowserSource reads LinkedIn cookies from local browser cookie stores.
type BrowserSource struct {
	logger *slog.Logger
}

// NewBrowserSource creates a new browser cookie source.
func NewBrowserSource(logger *slog.Logger) *BrowserSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &BrowserSource{logger: logger}
}

// Credential returns a cookie credential harvested from browser stores.
func (s *BrowserSource) Credential(ctx context.Context) (*Credential, error) {
	// Try Firefox profiles first (including Developer Edition)
	if cred := s.tryFirefoxProfiles(ctx); cred != nil {
		return cred, nil
	}

	// Fall back to kooky's automatic browser detection
	kookies, err := kooky.ReadCookies(ctx, kooky.Valid, kooky.DomainHasSuffix(cookieDomain))
	if err != nil {
		s.logger.Debug("failed to read browser cookies", "error", err)
		return nil, nil //nolint:nilnil // failed browser read is not a fatal error
	}
	if len(kookies) == 0 {
		return nil, nil //nolint:nilnil // no browser cookies is not an error
	}
	return s.filterEssential(kookies)
}

func (s *BrowserSource) tryFirefoxProfiles(ctx context.Context) *Credential {
	home := os.Getenv("HOME")
	if home == "" {
		return nil
	}

	dir := filepath.Join(home, "Library", "Application Support", "Firefox", "Profiles")
	pattern := filepath.Join(dir, "*", "cookies.sqlite")
	matches, err := filepath.Glob(pattern)
	if err != nil || len(matches) == 0 {
		return nil
	}

	for _, f := range matches {
		kookies, err := firefox.ReadCookies(ctx, f, kooky.Valid, kooky.DomainHasSuffix(cookieDomain))
		if err == nil && len(kookies) > 0 {
			s.logger.Debug("found Firefox cookies",
				"profile", filepath.Base(filepath.Dir(f)),
				"count", len(kookies))
			if cred, err := s.filterEssential(kookies); err == nil && cred != nil {
				return cred
			}
		}
	}
	return nil
}

// filterEssential keeps only the cookies a session needs, in the canonical
// order of essentialCookies.
func (s *BrowserSource) filterEssential(kookies []*kooky.Cookie) (*Credential, error) {
	byName := make(map[string]string, len(kookies))
	for _, c := range kookies {
		if c.Value != "" {
			byName[c.Name] = c.Value
		}
	}

	var cookies []Cookie
	for _, name := range essentialCookies {
		if value, ok := byName[name]; ok {
			cookies = append(cookies, Cookie{Name: name, Value: value})
			s.logger.Debug("found essential cookie", "name", name, "len", len(value))
		}
	}
	if len(cookies) == 0 {
		return nil, nil //nolint:nilnil // no essential cookies is not an error
	}
	return New(cookies, "", "")
}
