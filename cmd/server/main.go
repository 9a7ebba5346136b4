/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the canteen ledger server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags and load configuration
  2. Open the SQLite store
  3. Load the stored snapshot into the in-memory ledger
  4. Subscribe autosave so every change is written back
  5. Build the settlement engine with its report sink
  6. Start the backup scheduler
  7. Configure HTTP router and start server

COMMAND-LINE FLAGS:
  -config  YAML config file (default: ./config.yaml if present)
  -port    HTTP server port, overrides server.port
  -db      SQLite database path, overrides database.path
           Use ":memory:" for in-memory database

ENVIRONMENT:
  Every config key can be set with the CANTINA_ prefix,
  e.g. CANTINA_SERVER_PORT=9090, CANTINA_BACKUP_ENABLED=false.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the backup scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection
  5. Exit

EXAMPLES:
  ./server -db="./data/cantina.db"
  ./server -db=":memory:" -port=3000
  ./server -config=/etc/cantina.yaml

SEE ALSO:
  - config/config.go: Configuration keys and defaults
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

	"github.com/warp/canteen-ledger/api"
	"github.com/warp/canteen-ledger/config"
	"github.com/warp/canteen-ledger/ledger"
	"github.com/warp/canteen-ledger/report"
	"github.com/warp/canteen-ledger/settlement"
	"github.com/warp/canteen-ledger/store/sqlite"
)

func main() {
	// Flags
	configPath := flag.String("config", "", "YAML config file")
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
		cfg.Database.Path = *dbPath
	}

	// Initialize store
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Load stored state into the ledger
	l := ledger.New()
	snap, err := store.Load(context.Background())
	if err != nil {
		log.Fatalf("Failed to load ledger: %v", err)
	}
	if err := l.Restore(snap); err != nil {
		log.Fatalf("Stored ledger is invalid: %v", err)
	}
	log.Printf("Loaded %d people and %d products from %s", len(snap.People), len(snap.Products), cfg.Database.Path)

	l.Subscribe(ledger.Autosave(store, log.Printf))

	// Settlement engine
	renderers := make([]report.Renderer, 0, len(cfg.Reports.Formats))
	for _, format := range cfg.Reports.Formats {
		r, err := report.RendererFor(format)
		if err != nil {
			log.Fatalf("Invalid report format: %v", err)
		}
		renderers = append(renderers, r)
	}
	engine := settlement.NewEngine(l, report.NewFileSink(cfg.Reports.Dir, renderers...), store)

	// Initialize handler
	handler := api.NewHandler(l, engine, store)

	// Backups
	backups := api.NewBackupScheduler(l, cfg.Backup.Dir)
	backups.Interval = cfg.Backup.Interval
	backups.Enabled = cfg.Backup.Enabled
	backups.Start()

	// Create router
	router := api.NewRouter(handler, cfg.Server.AllowedOrigins)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
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
	backups.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
