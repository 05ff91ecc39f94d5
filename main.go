// Command studyduel starts the quiz session server.
//
// It supports two modes:
//  1. "server" (default) – runs the HTTP server exposing the REST API, WebSocket push channel, and an /mcp HTTP endpoint
//  2. "stdio-mcp" – runs an MCP stdio server and spins up an internal HTTP API if none is available
//
// Flags control host/port, config file, debug logging, version output,
// and optional ngrok tunneling for easy external access during development.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"

	"github.com/studyduel/studyduel/api"
	"github.com/studyduel/studyduel/quiz/config"
	"github.com/studyduel/studyduel/quiz/generator"
	"github.com/studyduel/studyduel/quiz/service"
	"github.com/studyduel/studyduel/quiz/session"
	"github.com/studyduel/studyduel/transport/mcp"
	"github.com/studyduel/studyduel/transport/websocket"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "StudyDuel Session Server"
)

// Configuration flags control how the server starts and which services are enabled.
var (
	port         = flag.String("port", "", "HTTP server port (overrides config)")
	host         = flag.String("host", "", "HTTP server host (overrides config)")
	configPath   = flag.String("config", getConfigPathDefault(), "Path to server config YAML")
	debug        = flag.Bool("debug", false, "Enable debug logging")
	version      = flag.Bool("version", false, "Show version information")
	ngrokEnabled = flag.Bool("ngrok", false, "Enable ngrok tunnel")
	ngrokAuth    = flag.String("ngrok-auth", "", "Ngrok auth token (or use NGROK_AUTHTOKEN env var)")
	ngrokDomain  = flag.String("ngrok-domain", "", "Custom ngrok domain (optional)")
)

// getConfigPathDefault honors the CONFIG_FILE environment variable; an empty
// default means the built-in configuration is used.
func getConfigPathDefault() string {
	return os.Getenv("CONFIG_FILE")
}

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS] [MODE]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "%s v%s\n\n", AppName, Version)
		fmt.Fprintf(os.Stderr, "Available modes:\n")
		fmt.Fprintf(os.Stderr, "  server, http     Run HTTP server with API, WebSocket, and MCP endpoint (default)\n")
		fmt.Fprintf(os.Stderr, "  stdio-mcp        Run MCP stdio server with internal HTTP server\n")
		fmt.Fprintf(os.Stderr, "  mcp-stdio        Alias for stdio-mcp\n")
		fmt.Fprintf(os.Stderr, "  mcp              Alias for stdio-mcp\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s                      # Run HTTP server on default port 8080\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -port 9090           # Run HTTP server on port 9090\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -config sd.yaml      # Run with a config file\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s stdio-mcp            # Run MCP stdio server\n", os.Args[0])
	}
}

// main parses flags, initializes services, and starts the selected mode.
func main() {
	// Load .env file if it exists (ignore error if not found)
	envLoaded := false
	if err := godotenv.Load(); err == nil {
		envLoaded = true
	}

	flag.Parse()

	if *version {
		fmt.Printf("%s v%s\n", AppName, Version)
		os.Exit(0)
	}

	logger := setupLogging(*debug)
	if envLoaded {
		logger.Info().Msg("loaded environment variables from .env file")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if *host != "" {
		cfg.Host = *host
	}
	if *port != "" {
		cfg.Port = *port
	}

	// Determine mode from command
	args := flag.Args()
	mode := "server"
	if len(args) > 0 {
		mode = args[0]
	}

	logger.Info().
		Str("version", Version).
		Str("mode", mode).
		Str("store", cfg.Store).
		Msg("starting server")

	examService, manager, cleanup, err := initializeServices(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize services")
	}
	defer cleanup()

	switch mode {
	case "stdio-mcp", "mcp-stdio", "mcp":
		runStdioMCPWithInternalServer(cfg, examService, logger)

	case "server", "http":
		runHTTPServer(cfg, examService, manager, logger)

	default:
		logger.Fatal().Str("mode", mode).Msg("unknown mode, use 'server' (default) or 'stdio-mcp'")
	}
}

// setupLogging configures the global zerolog logger. Debug mode switches to
// the human-readable console writer.
func setupLogging(debug bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}

	var logger zerolog.Logger
	if debug {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(level).With().Timestamp().Logger()
}

// initializeServices wires the session store, generator and exam service.
// The returned cleanup closes the store backend on shutdown.
func initializeServices(cfg *config.Config, logger zerolog.Logger) (service.ExamService, *session.Manager, func(), error) {
	cleanup := func() {}

	var manager *session.Manager
	var persistence session.SessionPersistence

	switch cfg.Store {
	case "memory":
		manager = session.NewManager(logger)

	case "file":
		fp, err := session.NewFilePersistence(cfg.SessionsDir)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to create session persistence: %w", err)
		}
		persistence = fp
		manager = session.NewManagerWithPersistence(fp, logger)

	case "sqlite":
		store, err := session.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		persistence = store
		manager = session.NewManagerWithPersistence(store, logger)
		cleanup = func() {
			if err := store.Close(); err != nil {
				logger.Warn().Err(err).Msg("failed to close sqlite store")
			}
		}
	}

	if persistence != nil {
		if err := manager.LoadPersistedSessions(); err != nil {
			logger.Warn().Err(err).Msg("failed to load persisted sessions")
		} else {
			logger.Info().Int("sessions", manager.Count()).Msg("restored persisted sessions")
		}
	}

	var gen generator.Generator
	switch cfg.Generator.Kind {
	case "openai":
		gen = generator.NewOpenAI(cfg.Generator.APIKey, cfg.Generator.BaseURL, cfg.Generator.Model)
		logger.Info().Str("model", cfg.Generator.Model).Msg("using openai question generator")
	default:
		gen = generator.NewHeuristic()
	}

	examService := service.NewExamService(manager, gen, cfg.QuestionCount, logger)

	go sessionCleanupRoutine(manager, cfg, logger)
	if cfg.Store == "file" {
		go filesystemSyncRoutine(manager, persistence, logger)
	}

	return examService, manager, cleanup, nil
}

// runHTTPServer starts the HTTP server with REST API, WebSocket hub, and an /mcp proxy endpoint.
// If ngrok is enabled (via flag or environment), it also provisions a public tunnel.
func runHTTPServer(cfg *config.Config, examService service.ExamService, manager *session.Manager, logger zerolog.Logger) {
	hub := websocket.NewHub(logger)
	go hub.Run()

	apiServer := api.NewServer(examService, hub, api.Options{
		RatePerSecond: cfg.RateLimit.PerSecond,
		RateBurst:     cfg.RateLimit.Burst,
	}, logger)

	addr := cfg.Addr()

	// MCP client for the /mcp endpoint proxies back into our own API.
	baseURL := fmt.Sprintf("http://%s", addr)
	mcpClient := mcp.NewClient(baseURL)

	mainRouter := http.NewServeMux()
	mainRouter.Handle("/", apiServer)
	mainRouter.HandleFunc("/mcp", mcpHTTPHandler(mcpClient))

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      mainRouter,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()

		logger.Info().Str("addr", addr).Msg("http server listening")
		logger.Info().Msgf("REST API: http://%s/session", addr)
		logger.Info().Msgf("WebSocket: ws://%s/ws?session=<code>&token=<token>", addr)
		logger.Info().Msgf("MCP endpoint: http://%s/mcp", addr)

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// Check if ngrok should be enabled (from flag or environment).
	ngrokShouldRun := *ngrokEnabled
	if !ngrokShouldRun {
		if envEnabled := os.Getenv("NGROK_ENABLED"); envEnabled == "true" || envEnabled == "1" {
			ngrokShouldRun = true
		}
	}

	if ngrokShouldRun {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runNgrokTunnel(ctx, mainRouter, logger)
		}()
	}

	sig := <-stop
	logger.Info().Str("signal", sig.String()).Msg("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http server shutdown error")
	}

	if manager.HasPersistence() {
		if err := manager.SaveAllSessions(); err != nil {
			logger.Warn().Err(err).Msg("failed to save sessions on shutdown")
		}
	}

	wg.Wait()
	logger.Info().Msg("server stopped")
}

// mcpHTTPHandler exposes the MCP server over plain HTTP POST.
func mcpHTTPHandler(mcpClient *mcp.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Failed to read request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		response := mcpClient.GetMCPServer().HandleMessage(r.Context(), body)

		w.Header().Set("Content-Type", "application/json")
		responseData, err := json.Marshal(response)
		if err != nil {
			http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
			return
		}
		w.Write(responseData)
	}
}

// runNgrokTunnel provisions a public tunnel and serves the router through it.
func runNgrokTunnel(ctx context.Context, handler http.Handler, logger zerolog.Logger) {
	authToken := *ngrokAuth
	if authToken == "" {
		authToken = os.Getenv("NGROK_AUTHTOKEN")
		if authToken == "" {
			authToken = os.Getenv("NGROK_AUTH_TOKEN")
		}
	}

	if authToken == "" {
		logger.Warn().Msg("ngrok enabled but no auth token provided (use -ngrok-auth or NGROK_AUTHTOKEN)")
		return
	}

	domain := *ngrokDomain
	if domain == "" {
		domain = os.Getenv("NGROK_DOMAIN")
	}

	var tunnel ngrokConfig.Tunnel
	if domain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(domain))
		logger.Info().Str("domain", domain).Msg("using custom ngrok domain")
	} else {
		tunnel = ngrokConfig.HTTPEndpoint()
	}

	tun, err := ngrok.Listen(ctx,
		tunnel,
		ngrok.WithAuthtoken(authToken),
	)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to start ngrok tunnel")
		return
	}
	defer func() {
		if err := tun.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close ngrok tunnel")
		}
	}()

	logger.Info().Str("url", tun.URL()).Msg("ngrok tunnel established")

	if err := http.Serve(tun, handler); err != nil && err != http.ErrServerClosed {
		logger.Warn().Err(err).Msg("ngrok server error")
	}
	logger.Info().Msg("ngrok tunnel closed")
}

// sessionCleanupRoutine periodically removes sessions that have not been
// accessed within the configured retention window.
func sessionCleanupRoutine(manager *session.Manager, cfg *config.Config, logger zerolog.Logger) {
	ticker := time.NewTicker(cfg.CleanupInterval.Std())
	defer ticker.Stop()

	for range ticker.C {
		removed := manager.CleanupExpiredSessions(cfg.SessionTTL.Std())
		if removed > 0 {
			logger.Info().Int("removed", removed).Msg("cleaned up expired sessions")
		}
	}
}

// filesystemSyncRoutine periodically syncs in-memory sessions with filesystem
// state, removing sessions from memory when their files are deleted.
func filesystemSyncRoutine(manager *session.Manager, persistence session.SessionPersistence, logger zerolog.Logger) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		if persistence == nil {
			continue
		}

		pruned := 0
		for _, sess := range manager.List() {
			if !persistence.Exists(sess.ID) {
				if err := manager.DeleteFromMemory(sess.ID); err == nil {
					pruned++
				}
			}
		}

		if pruned > 0 {
			logger.Info().Int("pruned", pruned).Msg("filesystem sync pruned orphaned sessions")
		}
	}
}

// runStdioMCPWithInternalServer runs an MCP stdio server.
// It tries to reuse an external API at the configured address; if unavailable,
// it starts a minimal internal HTTP API bound to a random loopback port.
func runStdioMCPWithInternalServer(cfg *config.Config, examService service.ExamService, logger zerolog.Logger) {
	var baseURL string

	externalURL := fmt.Sprintf("http://%s", cfg.Addr())
	logger.Info().Str("url", externalURL).Msg("checking for external API server")

	testClient := &http.Client{Timeout: 2 * time.Second}
	resp, err := testClient.Get(externalURL + "/health")
	if err == nil && resp.StatusCode < 500 {
		resp.Body.Close()
		logger.Info().Str("url", externalURL).Msg("using external API server for MCP")
		baseURL = externalURL
	} else {
		listener, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to get available port")
		}

		internalAddr := listener.Addr().String()
		logger.Info().Str("addr", internalAddr).Msg("starting internal HTTP server for MCP stdio")

		hub := websocket.NewHub(logger)
		go hub.Run()

		apiServer := api.NewServer(examService, hub, api.Options{
			RatePerSecond: cfg.RateLimit.PerSecond,
			RateBurst:     cfg.RateLimit.Burst,
		}, logger)

		httpServer := &http.Server{Handler: apiServer}
		go func() {
			if err := httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
				logger.Warn().Err(err).Msg("internal HTTP server error")
			}
		}()

		// Wait a moment for the server to be ready.
		time.Sleep(100 * time.Millisecond)

		baseURL = fmt.Sprintf("http://%s", internalAddr)
	}

	mcpClient := mcp.NewClient(baseURL)

	logger.Info().Msg("MCP stdio server ready")
	if err := server.ServeStdio(mcpClient.GetMCPServer()); err != nil {
		logger.Fatal().Err(err).Msg("MCP stdio server error")
	}
}
