// Command liprofile fetches one LinkedIn profile from the command line,
// bypassing the MCP layer. Useful for verifying that credentials work.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/codeGROOVE-dev/linkmcp/pkg/credential"
	"github.com/codeGROOVE-dev/linkmcp/pkg/voyager"
)

var (
	verbose    = flag.Bool("v", false, "verbose logging")
	probe      = flag.Bool("probe", false, "run an auth probe instead of fetching a profile")
	search     = flag.String("search", "", "run a people search for this query instead of fetching a profile")
	cookieFile = flag.String("cookie-file", "", "read cookies from a Netscape-format cookie file")
	noBrowser  = flag.Bool("no-browser", false, "disable reading cookies from browser stores")
)

func main() {
	flag.Parse()
	godotenv.Load() //nolint:errcheck // missing .env is fine

	logLevel := slog.LevelWarn
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	if !*probe && *search == "" && len(flag.Args()) == 0 {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <public-identifier-or-profile-url>\n\n", os.Args[0])
		fmt.Fprint(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
		fmt.Fprint(os.Stderr, "\nExample:\n")
		fmt.Fprintf(os.Stderr, "  %s https://www.linkedin.com/in/johndoe/\n", os.Args[0])
		os.Exit(1)
	}

	ctx := context.Background()

	sources := []credential.Source{credential.EnvSource{}}
	if *cookieFile != "" {
		sources = append(sources, credential.NewFileSource(*cookieFile))
	}
	if !*noBrowser {
		sources = append(sources, credential.NewBrowserSource(logger))
	}
	cred, err := credential.Chain(ctx, sources...)
	if err != nil {
		log.Fatalf("Failed to load credentials: %v", err)
	}
	if cred == nil {
		log.Fatalf("No credentials found; set %v or log in to LinkedIn in your browser", credential.EnvVars())
	}

	fetcher, err := voyager.NewFetcher(cred, voyager.WithFetcherLogger(logger))
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}

	switch {
	case *probe:
		result, err := fetcher.Probe(ctx)
		if err != nil {
			log.Fatalf("Probe failed: %v", err)
		}
		outputJSON(result)
	case *search != "":
		hits, note, err := fetcher.Search(ctx, *search, 10)
		if err != nil {
			log.Fatalf("Search failed: %v", err)
		}
		if note != "" {
			fmt.Fprintln(os.Stderr, note)
		}
		outputJSON(hits)
	default:
		publicID := voyager.ExtractPublicIdentifier(flag.Arg(0))
		if publicID == "" {
			log.Fatalf("No public identifier in %q", flag.Arg(0))
		}
		profile, note, err := fetcher.Profile(ctx, publicID)
		if err != nil {
			log.Fatalf("Failed to fetch profile: %v", err)
		}
		if note != "" {
			fmt.Fprintln(os.Stderr, note)
		}
		outputJSON(profile)
	}
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Fatalf("Output error: %v", err)
	}
}
