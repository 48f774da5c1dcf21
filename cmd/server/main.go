/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the card ledger server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env file + environment)
  2. Initialize SQLite store
  3. Wire the lending controller and the mutation service
  4. Configure HTTP router
  5. Start server with graceful shutdown

CONFIGURATION (environment, see config package):
  CARDLEDGER_PORT                 HTTP server port (default: 8080)
  CARDLEDGER_DB                   SQLite database path (default: cardledger.db)
                                  Use ":memory:" for an in-memory database
  CARDLEDGER_LOW_BALANCE_WARNING  Recharge threshold in yen (default: 1000)
  CARDLEDGER_LOCK_TIMEOUT         Per-card lock wait (default: 5s)
  CARDLEDGER_RETOUCH_WINDOW       Corrective re-tap window (default: 30s)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/transitpass/cardledger/api"
	"github.com/transitpass/cardledger/config"
	"github.com/transitpass/cardledger/lending"
	"github.com/transitpass/cardledger/mutation"
	"github.com/transitpass/cardledger/store/sqlite"
)

func main() {
	cfg := config.Load()

	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}
	defer store.Close()

	locks := lending.NewLockManager(cfg.LockTimeout)
	retouch := lending.NewRetouchState(cfg.RetouchWindow)
	controller := lending.NewController(store, locks, retouch, cfg)
	mutations := mutation.NewService(store)

	handler := api.NewHandler(store, controller, mutations)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithFields(log.Fields{"port": cfg.Port, "db": cfg.DBPath}).Info("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}

	log.Info("server stopped")
}
