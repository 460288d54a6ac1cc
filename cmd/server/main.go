/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the Touch Fish earnings server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags, load YAML config
  2. Initialize SQLite store
  3. Create session manager, activities and websocket hub
  4. Restore sessions (stopped) and live activities
  5. Start the tick source
  6. Configure HTTP router and serve with graceful shutdown

COMMAND-LINE FLAGS:
  -config  YAML config file (default: touchfish.yaml, optional)
  -port    HTTP server port, overrides config
  -db      SQLite database path, overrides config
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the ticker (final checkpoint)
  4. Stop the hub, close database connection

EXAMPLES:
  ./server -db=":memory:"
  ./server -config=./touchfish.yaml -port=3000

SEE ALSO:
  - config/config.go: File format
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/touchfish/api"
	"github.com/warp/touchfish/config"
	"github.com/warp/touchfish/earnings"
	"github.com/warp/touchfish/factory"
	"github.com/warp/touchfish/mirror"
	"github.com/warp/touchfish/store/sqlite"
)

func main() {
	// Flags
	configPath := flag.String("config", "touchfish.yaml", "YAML config file")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Store.Path = *dbPath
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	// Initialize store
	store, err := sqlite.New(cfg.Store.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	rootCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()

	// Sessions and sinks
	sessions := earnings.NewManager(store, earnings.SystemClock{})
	activities := mirror.NewActivities(sessions, store)

	hub := api.NewHub()
	go hub.Run(rootCtx)
	sessions.OnCreate(func(eng *earnings.Engine) {
		eng.Register("stream", hub)
	})

	n, err := sessions.Load(rootCtx)
	if err != nil {
		log.Printf("Warning: Failed to load sessions: %v", err)
	} else if n > 0 {
		log.Printf("Restored %d sessions (stopped)", n)
	}
	if n, err := activities.Load(rootCtx); err != nil {
		log.Printf("Warning: Failed to load activities: %v", err)
	} else if n > 0 {
		log.Printf("Restored %d activities", n)
	}

	presets := factory.NewPresetRegistry(factory.DefaultPresets()...)
	for _, p := range cfg.Presets {
		presets.Register(p)
	}

	// Tick source
	ticker := api.NewTicker(sessions, activities)
	ticker.Interval = cfg.Ticker.Interval
	ticker.MirrorInterval = cfg.Ticker.MirrorInterval
	ticker.Start()

	// Create router
	handler := api.NewHandler(sessions, activities, presets, hub)
	router := api.NewRouter(handler, cfg.Server.CORSOrigins)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on http://localhost:%d", cfg.Server.Port)
		log.Printf("API available at http://localhost:%d/api", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
	ticker.Stop()
	stopHub()

	log.Println("Server stopped")
}
