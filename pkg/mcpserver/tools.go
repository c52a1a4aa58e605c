package mcpserver

import (
	"context"
	"errors"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpsrv "github.com/mark3labs/mcp-go/server"

	"github.com/codeGROOVE-dev/linkmcp/pkg/voyager"
)

// Search limit bounds. Requests outside the range are clamped, not rejected.
const (
	searchLimitDefault = 10
	searchLimitMin     = 1
	searchLimitMax     = 25
)

func (s *Server) toolSearchAccounts() mcpsrv.ServerTool {
	tool := mcplib.NewTool("search_accounts",
		mcplib.WithDescription(`Search LinkedIn people by free-text query.

Returns up to 25 rows with fullName, headline, location, and the
publicIdentifier needed for get_profile. An empty result list means LinkedIn
returned nothing recognizable for the query, which can also happen when the
account's search access is restricted.`),
		mcplib.WithString("query",
			mcplib.Description("Free-text search query, e.g. a person's name or name plus company."),
			mcplib.Required(),
		),
		mcplib.WithNumber("limit",
			mcplib.Description("Maximum rows to return, 1-25. Defaults to 10."),
		),
		mcplib.WithReadOnlyHintAnnotation(true),
	)
	return mcpsrv.ServerTool{Tool: tool, Handler: s.handleSearchAccounts}
}

type searchResponse struct {
	Query   string              `json:"query"`
	Count   int                 `json:"count"`
	Results []voyager.SearchHit `json:"results"`
	Note    string              `json:"note,omitempty"`
}

func (s *Server) handleSearchAccounts(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	query, ok := stringArg(req, "query")
	if !ok || query == "" {
		return resultErr(errors.New("search_accounts: query is required")), nil
	}
	limit := clampLimit(req)

	fetcher, err := s.fetcherFrom(ctx)
	if err != nil {
		return resultErr(fmt.Errorf("search_accounts: %w", err)), nil
	}

	s.logger.InfoContext(ctx, "mcp: search_accounts", "query", query, "limit", limit)

	hits, note, err := fetcher.Search(ctx, query, limit)
	if err != nil {
		return resultErr(fmt.Errorf("search_accounts: %w", err)), nil
	}
	if hits == nil {
		hits = []voyager.SearchHit{}
	}
	return resultJSON(searchResponse{Query: query, Count: len(hits), Results: hits, Note: note})
}

func clampLimit(req mcplib.CallToolRequest) int {
	limit, ok := intArg(req, "limit")
	if !ok {
		return searchLimitDefault
	}
	if limit < searchLimitMin {
		return searchLimitMin
	}
	if limit > searchLimitMax {
		return searchLimitMax
	}
	return limit
}

func (s *Server) toolGetProfile() mcpsrv.ServerTool {
	tool := mcplib.NewTool("get_profile",
		mcplib.WithDescription(`Fetch one LinkedIn profile.

Accepts a public identifier (the "johndoe" in linkedin.com/in/johndoe) or a
full profile URL. Returns fullName, birthDate, summary, experience,
education, and skills; fields the profile does not expose are null.`),
		mcplib.WithString("publicIdentifier",
			mcplib.Description("Profile public identifier, or a linkedin.com/in/... URL."),
			mcplib.Required(),
		),
		mcplib.WithReadOnlyHintAnnotation(true),
	)
	return mcpsrv.ServerTool{Tool: tool, Handler: s.handleGetProfile}
}

type profileResponse struct {
	Result *voyager.ProfileResult `json:"result"`
	Note   string                 `json:"note,omitempty"`
}

func (s *Server) handleGetProfile(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	rawID, ok := stringArg(req, "publicIdentifier")
	if !ok || rawID == "" {
		return resultErr(errors.New("get_profile: publicIdentifier is required")), nil
	}
	publicID := voyager.ExtractPublicIdentifier(rawID)
	if publicID == "" {
		return resultErr(fmt.Errorf("get_profile: no public identifier in %q", rawID)), nil
	}

	fetcher, err := s.fetcherFrom(ctx)
	if err != nil {
		return resultErr(fmt.Errorf("get_profile: %w", err)), nil
	}

	s.logger.InfoContext(ctx, "mcp: get_profile", "public_id", publicID)

	profile, note, err := fetcher.Profile(ctx, publicID)
	if err != nil {
		return resultErr(fmt.Errorf("get_profile %q: %w", publicID, err)), nil
	}
	return resultJSON(profileResponse{Result: profile, Note: note})
}

func (s *Server) toolAuthProbe() mcpsrv.ServerTool {
	tool := mcplib.NewTool("auth_probe",
		mcplib.WithDescription(`Probe whether the configured LinkedIn session is usable.

Makes one non-redirecting request to LinkedIn's own-identity endpoint and
reports the raw outcome: HTTP status, redirect Location if any, and a body
preview. A 200 means the session works; a redirect to a login page means
the cookies are stale.`),
		mcplib.WithReadOnlyHintAnnotation(true),
	)
	return mcpsrv.ServerTool{Tool: tool, Handler: s.handleAuthProbe}
}

func (s *Server) handleAuthProbe(ctx context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	fetcher, err := s.fetcherFrom(ctx)
	if err != nil {
		return resultErr(fmt.Errorf("auth_probe: %w", err)), nil
	}

	s.logger.InfoContext(ctx, "mcp: auth_probe")

	probe, err := fetcher.Probe(ctx)
	if err != nil {
		return resultErr(fmt.Errorf("auth_probe: %w", err)), nil
	}
	return resultJSON(map[string]any{"probe": probe})
}

// fetcherFrom resolves the request's credential and builds the upstream
// fetcher for it.
func (s *Server) fetcherFrom(ctx context.Context) (*voyager.Fetcher, error) {
	cred, err := s.credentialFrom(ctx)
	if err != nil {
		return nil, err
	}
	return s.newFetcher(cred)
}
