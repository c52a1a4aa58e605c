// Command linkmcp serves LinkedIn lookup tools over the model context
// protocol.
//
// Usage:
//
//	linkmcp                      # stdio transport, credentials from env/browser
//	linkmcp -http 127.0.0.1:8818 # streamable HTTP transport
//	linkmcp -reset               # discard cached session state before starting
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/codeGROOVE-dev/linkmcp/pkg/credential"
	"github.com/codeGROOVE-dev/linkmcp/pkg/mcpserver"
	"github.com/codeGROOVE-dev/linkmcp/pkg/sessioncache"
)

const secretEnvVar = "LINKMCP_SECRET"

func main() {
	httpAddr := flag.String("http", "", "serve streamable HTTP on this address instead of stdio (e.g. 127.0.0.1:8818)")
	debug := flag.Bool("debug", false, "enable debug logging")
	verbose := flag.Bool("v", false, "verbose logging (same as -debug)")
	cacheDir := flag.String("cache-dir", sessioncache.DefaultPath(), "directory for persisted session state")
	cacheTTL := flag.Duration("cache-ttl", 7*24*time.Hour, "how long established sessions stay cached")
	noCache := flag.Bool("no-cache", false, "disable session persistence")
	reset := flag.Bool("reset", false, "delete persisted session state before starting")
	cookieFile := flag.String("cookie-file", "", "read cookies from a Netscape-format cookie file")
	noBrowser := flag.Bool("no-browser", false, "disable reading cookies from browser stores")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "lifetime of bearer tokens issued by POST /token")
	flag.Parse()

	godotenv.Load() //nolint:errcheck // missing .env is fine

	logLevel := slog.LevelInfo
	if *debug || *verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	if err := run(logger, config{
		httpAddr:   *httpAddr,
		cacheDir:   *cacheDir,
		cacheTTL:   *cacheTTL,
		noCache:    *noCache,
		reset:      *reset,
		cookieFile: *cookieFile,
		noBrowser:  *noBrowser,
		tokenTTL:   *tokenTTL,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type config struct {
	httpAddr   string
	cacheDir   string
	cookieFile string
	cacheTTL   time.Duration
	tokenTTL   time.Duration
	noCache    bool
	reset      bool
	noBrowser  bool
}

func run(logger *slog.Logger, cfg config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.reset {
		if err := sessioncache.Purge(cfg.cacheDir); err != nil {
			return err
		}
		logger.Info("session cache purged", "dir", cfg.cacheDir)
	}

	opts := []mcpserver.ServerOption{
		mcpserver.WithLogger(logger),
		mcpserver.WithSource(credentialSource(cfg, logger)),
		mcpserver.WithTokenTTL(cfg.tokenTTL),
	}

	if !cfg.noCache {
		cache, err := sessioncache.NewWithPath(cfg.cacheTTL, cfg.cacheDir)
		if err != nil {
			logger.Warn("session cache unavailable, continuing without persistence", "error", err)
		} else {
			opts = append(opts, mcpserver.WithSessionCache(cache))
			logger.Debug("session cache initialized", "dir", cfg.cacheDir, "ttl", cfg.cacheTTL.String())
		}
	}

	if secret := os.Getenv(secretEnvVar); secret != "" {
		opts = append(opts, mcpserver.WithSecret([]byte(secret)))
	} else if cfg.httpAddr != "" {
		logger.Warn("no " + secretEnvVar + " set; bearer tokens will be unsigned session IDs")
	}

	srv := mcpserver.New(opts...)
	if cfg.httpAddr != "" {
		return srv.ServeHTTP(ctx, cfg.httpAddr)
	}
	return srv.ServeStdio(ctx)
}

// credentialSource builds the fallback chain consulted when a request does
// not carry its own credential: environment, cookie file, then browser
// cookie stores.
func credentialSource(cfg config, logger *slog.Logger) credential.Source {
	sources := []credential.Source{credential.EnvSource{}}
	if cfg.cookieFile != "" {
		sources = append(sources, credential.NewFileSource(cfg.cookieFile))
	}
	if !cfg.noBrowser {
		sources = append(sources, credential.NewBrowserSource(logger))
	}
	return credential.SourceFunc(func(ctx context.Context) (*credential.Credential, error) {
		return credential.Chain(ctx, sources...)
	})
}
