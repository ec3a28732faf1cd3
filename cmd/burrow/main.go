package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dukerupert/burrow/internal/backup"
	"github.com/dukerupert/burrow/internal/database"
	"github.com/dukerupert/burrow/internal/logging"
	"github.com/dukerupert/burrow/internal/scheduler"
	"github.com/dukerupert/burrow/internal/server"
)

func main() {
	logger := logging.Setup(os.Getenv("BURROW_LOG_LEVEL"))

	port := os.Getenv("BURROW_PORT")
	if port == "" {
		port = "8080"
	}

	dbPath := os.Getenv("BURROW_DB_PATH")
	if dbPath == "" {
		dbPath = "burrow.db"
	}

	db, err := database.Open(dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	srv := server.New(db, logger)

	backupCfg := backup.Config{
		Dir:        os.Getenv("BURROW_BACKUP_DIR"),
		DBPath:     dbPath,
		Passphrase: os.Getenv("BURROW_BACKUP_PASSPHRASE"),
		Keep:       envInt("BURROW_BACKUP_KEEP", 14),
	}
	backupMgr := backup.NewManager(backupCfg, db, logger.With("component", "backup"))

	pollerCfg := scheduler.Config{
		Interval:     envDuration("BURROW_POLL_INTERVAL", time.Minute),
		OverlapGuard: envDuration("BURROW_OVERLAP_GUARD", 2*time.Minute),
	}
	poller := scheduler.New(pollerCfg, srv.DutyStore(), srv.Wellbeing(), srv.Hub(), logger.With("component", "scheduler"))
	if err := poller.RunNightly(func() {
		srv.RateLimiter().Cleanup()
		if backupCfg.Enabled() {
			backupMgr.Run(context.Background())
		}
	}); err != nil {
		log.Fatalf("failed to schedule nightly housekeeping: %v", err)
	}
	poller.Start()
	defer poller.Stop()

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		fmt.Printf("Burrow running at http://localhost:%s\n", port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	fmt.Println("\nShutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Fatalf("shutdown error: %v", err)
	}
}

func envDuration(name string, fallback time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Fatalf("invalid %s: %v", name, err)
	}
	return d
}

func envInt(name string, fallback int) int {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("invalid %s: %v", name, err)
	}
	return n
}
