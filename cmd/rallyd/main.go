// Rallyd is the pickleball scheduling daemon: it turns free-text
// scheduling chatter and SMS replies into game sessions, tracks RSVPs,
// and fans notifications out to players.
//
// Configuration is loaded from environment variables. See internal/config
// for details.
//
// Usage:
//
//	# Start server with defaults
//	rallyd
//
//	# Configure via environment
//	RALLYD_SERVER_PORT=9090 RALLYD_STORE_PATH=/var/lib/rallyd/rallyd.db rallyd
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/rallyd/internal/config"
	"github.com/fyrsmithlabs/rallyd/internal/httpapi"
	"github.com/fyrsmithlabs/rallyd/internal/intent"
	"github.com/fyrsmithlabs/rallyd/internal/logging"
	"github.com/fyrsmithlabs/rallyd/internal/notify"
	"github.com/fyrsmithlabs/rallyd/internal/roster"
	"github.com/fyrsmithlabs/rallyd/internal/services"
	"github.com/fyrsmithlabs/rallyd/internal/session"
	"github.com/fyrsmithlabs/rallyd/internal/store"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// probabilisticTimeout bounds every LLM call; a timeout counts as a call
// failure and triggers the deterministic-only fallback.
const probabilisticTimeout = 10 * time.Second

func main() {
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  rallyd           Start the rallyd daemon\n")
			fmt.Fprintf(os.Stderr, "  rallyd version   Show version information\n")
			os.Exit(1)
		}
	}

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

// printVersion prints version information
func printVersion() {
	fmt.Printf("rallyd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the rallyd server and blocks until the context is cancelled.
//
//  1. Loads and validates configuration
//  2. Initializes the logger
//  3. Opens the record store (sqlite or memory)
//  4. Builds the extraction pipeline and reply classifier
//  5. Builds the notification dispatcher
//  6. Wires the service registry and HTTP server
//  7. Performs graceful shutdown on context cancellation
func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck
	logger = logger.With(zap.String("service", "rallyd"))

	logger.Info("starting rallyd",
		zap.String("version", version),
		zap.String("commit", gitCommit),
		zap.String("store", cfg.Store.Driver),
		zap.Bool("sms_enabled", cfg.SMSEnabled()),
		zap.Bool("dev_mode", cfg.Server.DevMode),
	)

	recordStore, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer recordStore.Close()

	profiles := roster.NewProfiles(recordStore)

	// The probabilistic extractor is optional: without an API key the
	// pipeline and classifier run deterministic-only.
	var extractor intent.Extractor
	var replyClassifier intent.IntentClassifier
	if cfg.Extractor.APIKey != "" {
		llm, err := intent.NewLLMClient(cfg.Extractor)
		if err != nil {
			return fmt.Errorf("initialize extractor: %w", err)
		}
		extractor = llm
		replyClassifier = llm
		logger.Info("probabilistic extractor enabled", zap.String("model", cfg.Extractor.Model))
	} else {
		logger.Warn("no extractor api key, running deterministic-only")
	}

	pipeline := intent.NewPipeline(intent.NewDeterministic(), extractor, probabilisticTimeout, logger)
	classifier := intent.NewClassifier(replyClassifier, probabilisticTimeout, logger)

	transport := notify.NewTwilioTransport(cfg.Twilio)
	dispatcher := notify.NewDispatcher(profiles, transport, recordStore, cfg.Dispatch.MaxConcurrent, logger)

	sessions := session.NewService(recordStore, profiles, dispatcher, logger)

	registry := services.NewRegistry(services.Options{
		Store:      recordStore,
		Profiles:   profiles,
		Extraction: pipeline,
		Classifier: classifier,
		Sessions:   sessions,
		Dispatcher: dispatcher,
	})

	server, err := httpapi.NewServer(registry, logger, &httpapi.Config{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		DevMode:         cfg.Server.DevMode,
		TwilioAuthToken: cfg.Twilio.AuthToken,
		ReadTimeout:     time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout:    time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("initialize http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return <-errCh
}

// openStore builds the configured record store.
func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Driver {
	case "memory":
		return store.NewMemoryStore(), nil
	case "sqlite":
		return store.OpenSQLite(cfg.Store.Path)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
