// Package mcpserver exposes LinkedIn lookup tools over the model context
// protocol, on stdio for local agents and streamable HTTP for remote ones.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpsrv "github.com/mark3labs/mcp-go/server"

	"github.com/codeGROOVE-dev/linkmcp/pkg/credential"
	"github.com/codeGROOVE-dev/linkmcp/pkg/sessioncache"
	"github.com/codeGROOVE-dev/linkmcp/pkg/tokenstore"
	"github.com/codeGROOVE-dev/linkmcp/pkg/voyager"
)

const (
	serverName    = "linkmcp"
	serverVersion = "1.0.0"

	defaultTokenTTL = 24 * time.Hour
)

// Transport selects how the MCP server communicates with its client.
type Transport string

const (
	// TransportStdio uses stdin/stdout (default, suitable for local agent
	// integrations).
	TransportStdio Transport = "stdio"
	// TransportHTTP uses streamable HTTP (suitable for remote agents and
	// concurrent clients).
	TransportHTTP Transport = "http"
)

// FetcherFactory builds an upstream fetcher for a resolved credential.
// Tests substitute a factory pointed at a local server.
type FetcherFactory func(cred *credential.Credential) (*voyager.Fetcher, error)

// Server wraps an MCP server and the credential plumbing its tools need.
type Server struct {
	mcp        *mcpsrv.MCPServer
	logger     *slog.Logger
	source     credential.Source
	tokens     *tokenstore.Store
	signer     *Signer
	cache      *sessioncache.Cache
	newFetcher FetcherFactory
	tokenTTL   time.Duration
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSource installs a fallback credential source consulted when a request
// carries no credential of its own.
func WithSource(source credential.Source) ServerOption {
	return func(s *Server) { s.source = source }
}

// WithSecret enables signed bearer tokens using the given HMAC secret.
// Without a secret, the /token endpoint hands out opaque session IDs instead.
func WithSecret(secret []byte) ServerOption {
	return func(s *Server) {
		if len(secret) > 0 {
			s.signer = NewSigner(secret)
		}
	}
}

// WithTokenTTL overrides how long registered sessions stay valid.
func WithTokenTTL(ttl time.Duration) ServerOption {
	return func(s *Server) {
		if ttl > 0 {
			s.tokenTTL = ttl
		}
	}
}

// WithSessionCache persists password-established upstream sessions.
func WithSessionCache(cache *sessioncache.Cache) ServerOption {
	return func(s *Server) { s.cache = cache }
}

// WithFetcherFactory overrides how upstream fetchers are built. Used by tests.
func WithFetcherFactory(factory FetcherFactory) ServerOption {
	return func(s *Server) {
		if factory != nil {
			s.newFetcher = factory
		}
	}
}

// New creates an MCP server with all tools registered. It does not start
// listening until one of the Serve* methods is called.
func New(opts ...ServerOption) *Server {
	s := &Server{
		logger:   slog.Default(),
		tokens:   tokenstore.New(),
		tokenTTL: defaultTokenTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.newFetcher == nil {
		s.newFetcher = func(cred *credential.Credential) (*voyager.Fetcher, error) {
			fetcherOpts := []voyager.FetcherOption{voyager.WithFetcherLogger(s.logger)}
			if s.cache != nil {
				fetcherOpts = append(fetcherOpts, voyager.WithFetcherSessionCache(s.cache))
			}
			return voyager.NewFetcher(cred, fetcherOpts...)
		}
	}

	mcpServer := mcpsrv.NewMCPServer(
		serverName,
		serverVersion,
		mcpsrv.WithInstructions(instructions()),
	)
	for _, t := range s.tools() {
		mcpServer.AddTool(t.Tool, t.Handler)
	}
	s.mcp = mcpServer
	return s
}

func instructions() string {
	return `You are connected to a LinkedIn lookup MCP server.

Available tools:
- search_accounts: search people by free-text query, returns up to 25 rows
- get_profile: fetch one profile by public identifier or profile URL
- auth_probe: report the raw outcome of an authenticated API request, for
  diagnosing session problems

All tools require LinkedIn session credentials, supplied per request via the
linkedin-session header or a bearer token, or server-side via environment
variables. Results come from LinkedIn's internal API and reflect what the
authenticated account is allowed to see.`
}

// ServeStdio runs the MCP server over stdin/stdout until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := mcpsrv.NewStdioServer(s.mcp)
	s.logger.InfoContext(ctx, "mcp server listening on stdio")
	if err := srv.Listen(ctx, os.Stdin, os.Stdout); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("mcp stdio server error: %w", err)
	}
	return nil
}

// ServeHTTP runs the MCP server as a streamable HTTP server on addr until
// ctx is cancelled. Besides the MCP endpoint it mounts POST /token, which
// exchanges a credential payload for a bearer token.
func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	streamSrv := mcpsrv.NewStreamableHTTPServer(s.mcp,
		mcpsrv.WithStreamableHTTPServer(httpSrv),
		mcpsrv.WithHTTPContextFunc(withRequestHeaders),
	)
	mux.Handle("/mcp", streamSrv)
	mux.HandleFunc("POST /token", s.handleToken)

	s.logger.InfoContext(ctx, "mcp server listening on http", "addr", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := streamSrv.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("mcp http server error: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.InfoContext(ctx, "mcp server shutting down")
		if err := streamSrv.Shutdown(context.Background()); err != nil {
			return fmt.Errorf("mcp http server shutdown error: %w", err)
		}
		return nil
	case err := <-errCh:
		return err
	}
}

// tools returns all MCP tools this server exposes.
func (s *Server) tools() []mcpsrv.ServerTool {
	return []mcpsrv.ServerTool{
		s.toolSearchAccounts(),
		s.toolGetProfile(),
		s.toolAuthProbe(),
	}
}

// resultErr wraps an error in a CallToolResult with IsError=true.
func resultErr(err error) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{mcplib.NewTextContent(err.Error())},
		IsError: true,
	}
}

// resultJSON serialises v to JSON and returns a CallToolResult.
func resultJSON(v any) (*mcplib.CallToolResult, error) {
	return mcplib.NewToolResultJSON(v)
}

// stringArg extracts a named string argument from a tool call request.
func stringArg(req mcplib.CallToolRequest, name string) (string, bool) {
	args := req.GetArguments()
	if args == nil {
		return "", false
	}
	v, ok := args[name]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// intArg extracts a named integer argument from a tool call request. JSON
// numbers arrive as float64.
func intArg(req mcplib.CallToolRequest, name string) (int, bool) {
	args := req.GetArguments()
	if args == nil {
		return 0, false
	}
	switch v := args[name].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	default:
		return 0, false
	}
}
