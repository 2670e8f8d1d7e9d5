package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"testforge/internal/config"
	"testforge/internal/db"
	"testforge/internal/gemini"
	"testforge/internal/github"
	"testforge/internal/ingest"
	"testforge/internal/server"
	"testforge/internal/source"
	"testforge/internal/worker"
)

var version = "dev"

const defaultAddr = "127.0.0.1:8750"

func usage() {
	fmt.Fprintf(os.Stderr, `testforge — AI test case generator

Usage:
  testforge serve [flags]   Start the HTTP server (default %s)

Flags:
  --addr         Address to listen on (default: config or %s)
  --config       Path to config YAML (default: ~/.testforge/config.yaml)
  --dev          Proxy non-API requests to Vite dev server (localhost:5173)
  --github-url   Override GitHub API endpoint (env: TESTFORGE_GITHUB_URL)
  --gemini-url   Override Gemini API endpoint (env: TESTFORGE_GEMINI_URL)

Environment:
  TESTFORGE_GITHUB_TOKEN / GITHUB_TOKEN         GitHub personal access token
  TESTFORGE_GEMINI_API_KEY / GEMINI_API_KEY     Gemini API key (required for generation)
`, defaultAddr, defaultAddr)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	subcmd := os.Args[1]
	rest := os.Args[2:]

	var err error
	switch subcmd {
	case "serve":
		err = runServe(rest)
	case "--version", "version":
		fmt.Println("testforge " + version)
		return
	case "help", "-h", "--help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", subcmd)
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "testforge %s: %v\n", subcmd, err)
		os.Exit(1)
	}
}

func runServe(args []string) error {
	addr := ""
	devMode := false
	configPath := ""
	githubURL := os.Getenv("TESTFORGE_GITHUB_URL")
	geminiURL := os.Getenv("TESTFORGE_GEMINI_URL")

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--addr":
			if i+1 < len(args) {
				addr = args[i+1]
				i++
			}
		case "--dev":
			devMode = true
		case "--config":
			if i+1 < len(args) {
				configPath = args[i+1]
				i++
			}
		case "--github-url":
			if i+1 < len(args) {
				githubURL = args[i+1]
				i++
			}
		case "--gemini-url":
			if i+1 < len(args) {
				geminiURL = args[i+1]
				i++
			}
		}
	}

	logger := slog.Default()

	// --- 1. Signal handling for graceful shutdown ---
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- 2. Load configuration and credentials ---
	if configPath == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return fmt.Errorf("determining config path: %w", err)
		}
		configPath = p
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if addr == "" {
		addr = cfg.Addr
	}
	creds := config.ResolveCredentials()
	if creds.GeminiAPIKey == "" {
		logger.Warn("no Gemini API key configured; test generation will fail",
			"env", "TESTFORGE_GEMINI_API_KEY")
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	// --- 3. Open database ---
	database, err := db.Open(cfg.DatabasePath())
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer database.Close()

	// --- 4. GitHub and Gemini clients ---
	var ghOpts []github.Option
	if githubURL != "" {
		ghOpts = append(ghOpts, github.WithBaseURL(githubURL+"/"))
	}
	if cfg.HasGithubApp() {
		ghOpts = append(ghOpts, github.WithAppAuth(github.AppCredentials{
			ClientID:       cfg.Github.App.ClientID,
			InstallationID: cfg.Github.App.InstallationID,
			PrivateKeyPath: cfg.Github.App.PrivateKeyPath,
		}))
	}
	gh, err := github.New(creds.GithubToken, ghOpts...)
	if err != nil {
		return fmt.Errorf("creating github client: %w", err)
	}

	var gemOpts []gemini.Option
	if geminiURL != "" {
		gemOpts = append(gemOpts, gemini.WithBaseURL(geminiURL))
	}
	if cfg.Gemini.Model != "" {
		gemOpts = append(gemOpts, gemini.WithModel(cfg.Gemini.Model))
	}
	gem := gemini.New(creds.GeminiAPIKey, gemOpts...)

	// --- 5. Source filter and fetchers ---
	filter := source.NewFilter()
	if cfg.Ingest.MaxFileSize > 0 {
		filter.MaxFileSize = cfg.Ingest.MaxFileSize
	}
	fetchers := map[string]worker.Fetcher{
		"api":   &ingest.APIFetcher{Client: gh, Filter: filter, MaxFiles: cfg.Ingest.MaxFiles, MaxContextBytes: cfg.Ingest.MaxContextBytes},
		"clone": &ingest.CloneFetcher{WorkDir: cfg.ClonesDir(), Filter: filter, MaxContextBytes: cfg.Ingest.MaxContextBytes},
	}

	// --- 6. WebSocket hub ---
	hub := server.NewHub(logger)

	// onEvent fans activity out to the hub. State-changing event types also
	// nudge the client to re-fetch the affected record.
	onEvent := func(repoID, eventType, detail string) {
		if msg, err := server.NewWSMessage(server.MsgActivity, map[string]string{
			"repo_id":    repoID,
			"event_type": eventType,
			"detail":     detail,
		}); err == nil {
			hub.Broadcast(msg)
		}
		switch eventType {
		case "fetch":
			if msg, err := server.NewWSMessage(server.MsgRepoUpdated, map[string]string{"id": repoID}); err == nil {
				hub.Broadcast(msg)
			}
		case "generate":
			if msg, err := server.NewWSMessage(server.MsgSuiteUpdated, map[string]string{"repo_id": repoID}); err == nil {
				hub.Broadcast(msg)
			}
		}
	}

	// --- 7. Worker dispatcher ---
	dispatcher := worker.New(worker.Config{
		DB:         database,
		MaxWorkers: cfg.Ingest.MaxWorkers,
		Fetchers:   fetchers,
		Generator:  gem,
		DataDir:    cfg.DataDir,
		Logger:     logger,
		OnEvent:    onEvent,
	})

	// --- 8. Start HTTP server ---
	srv, err := server.New(addr, server.Config{
		DevMode:   devMode,
		Hub:       hub,
		DB:        database,
		Jobs:      dispatcher,
		ModelName: gem.Model(),
		OnEvent:   onEvent,
	})
	if err != nil {
		return fmt.Errorf("starting server: %w", err)
	}

	if devMode {
		fmt.Fprintf(os.Stderr, "testforge listening on %s (dev mode: proxying to Vite)\n", srv.Addr())
	} else {
		fmt.Fprintf(os.Stderr, "testforge listening on %s\n", srv.Addr())
	}
	if githubURL != "" {
		fmt.Fprintf(os.Stderr, "  GitHub API: %s\n", githubURL)
	}
	if geminiURL != "" {
		fmt.Fprintf(os.Stderr, "  Gemini API: %s\n", geminiURL)
	}

	// Serve in a goroutine so we can wait for shutdown signal.
	go func() {
		if err := srv.Serve(); err != nil {
			logger.Debug("server stopped", "error", err)
		}
	}()

	// --- 9. Wait for shutdown ---
	<-ctx.Done()
	fmt.Fprintln(os.Stderr, "\nshutting down...")

	dispatcher.Wait()
	srv.Close()

	return nil
}
