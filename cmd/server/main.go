package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignite/session-reconciler/internal/api"
	"github.com/ignite/session-reconciler/internal/config"
	"github.com/ignite/session-reconciler/internal/eventstore"
	"github.com/ignite/session-reconciler/internal/pkg/distlock"
	"github.com/ignite/session-reconciler/internal/reconcile"
	"github.com/ignite/session-reconciler/internal/repository/postgres"
	"github.com/ignite/session-reconciler/internal/warehouse"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"
)

// checkPortAvailable verifies that the target port is not already in use.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v\n"+
			"  Hint: Run 'lsof -i :%d' to find the blocking process", port, addr, err, port)
	}
	ln.Close()
	return nil
}

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Pre-flight check: verify the target port is available
	if err := checkPortAvailable(cfg.Server.Host, cfg.Server.Port); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}
	log.Printf("Pre-flight check passed: port %d is available", cfg.Server.Port)

	if !cfg.EventStore.Enabled {
		log.Fatal("event_store must be enabled: the service has nothing to reconcile without it")
	}
	if !cfg.Warehouse.Enabled {
		log.Fatal("warehouse must be enabled: the service needs the tool-side counts")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ClickHouse event store (tracking pipeline side)
	events, err := eventstore.NewClient(cfg.EventStore)
	if err != nil {
		log.Fatalf("Failed to connect to ClickHouse: %v", err)
	}
	defer events.Close()
	if err := events.Ping(ctx); err != nil {
		log.Fatalf("ClickHouse ping failed: %v", err)
	}
	log.Printf("ClickHouse connected: %s/%s", cfg.EventStore.Host, cfg.EventStore.Database)

	// Snowflake warehouse (analytics tool side)
	baseline, err := warehouse.NewClient(cfg.Warehouse)
	if err != nil {
		log.Fatalf("Failed to connect to Snowflake: %v", err)
	}
	defer baseline.Close()
	log.Println("Snowflake connected")

	// Optional Redis for report caching and the run lock
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Printf("Redis unavailable, caching disabled: %v", err)
			redisClient = nil
		} else {
			log.Printf("Redis connected: %s", cfg.Redis.Addr)
		}
	}

	// Optional Postgres for run history
	var repo reconcile.Repository
	var db *sql.DB
	if cfg.Postgres.Enabled {
		db, err = sql.Open("postgres", cfg.Postgres.URL)
		if err != nil {
			log.Fatalf("Failed to open Postgres: %v", err)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			log.Fatalf("Postgres ping failed: %v", err)
		}
		repo = postgres.NewReconcileRunRepo(db)
		log.Println("Postgres run history enabled")
	}

	engine := reconcile.NewEngine(events, baseline, reconcile.EngineConfig{
		InactivityGap:  cfg.Reconcile.Gap(),
		RecencyHorizon: cfg.Reconcile.Recency(),
		NumWorkers:     cfg.Reconcile.NumWorkers,
		WriteAudit:     cfg.Reconcile.WriteAudit,
	})

	var lock distlock.DistLock
	if redisClient != nil || db != nil {
		lock = distlock.NewRunLock(redisClient, db, cfg.Reconcile.Interval())
	}

	runner := reconcile.NewRunner(engine, repo, redisClient, lock, reconcile.RunnerConfig{
		Interval: cfg.Reconcile.Interval(),
		Window:   cfg.Reconcile.Window(),
		CacheTTL: cfg.Reconcile.CacheTTL(),
	})
	go runner.Start(ctx)
	log.Printf("Reconciliation loop started: every %s over a %s window",
		cfg.Reconcile.Interval(), cfg.Reconcile.Window())

	handlers := api.NewHandlers(runner, repo, events, cfg.Reconcile.Gap(), cfg.Reconcile.Recency())
	server := api.NewServer(handlers, cfg.Server.AllowedOrigins)

	// Setup graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		log.Printf("Starting server on %s", addr)
		if err := server.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-done
	log.Println("Shutting down...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}
