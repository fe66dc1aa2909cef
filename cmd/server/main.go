package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/fuomag9/beatkeeper/internal/api"
	"github.com/fuomag9/beatkeeper/internal/config"
	"github.com/fuomag9/beatkeeper/internal/database"
	"github.com/fuomag9/beatkeeper/internal/heartbeat"
	"github.com/fuomag9/beatkeeper/internal/jobs"
	"github.com/fuomag9/beatkeeper/internal/maintenance"
	"github.com/fuomag9/beatkeeper/internal/monitor"
	"github.com/fuomag9/beatkeeper/internal/notification"
	"github.com/fuomag9/beatkeeper/internal/store"
	"github.com/fuomag9/beatkeeper/internal/uptime"
	"github.com/fuomag9/beatkeeper/internal/websocket"
)

func main() {
	flags := config.Flags("beatkeeper")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		log.Fatalf("Invalid arguments: %v", err)
	}
	if help, _ := flags.GetBool("help"); help {
		fmt.Fprintln(os.Stderr, "Usage: beatkeeper [flags]")
		flags.PrintDefaults()
		return
	}

	// Load configuration
	envFile, _ := flags.GetString("env-file")
	if err := config.LoadEnvFile(envFile, flags.Changed("env-file")); err != nil {
		log.Fatalf("Failed to load %s: %v", envFile, err)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.ApplyFlags(flags); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Initialize database
	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Get underlying SQL database for cleanup
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("Failed to get database connection: %v", err)
	}
	defer sqlDB.Close()

	// Run migrations
	if err := database.RunMigrations(cfg.Database, db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := store.New(db)
	evaluator := maintenance.NewEvaluator(st)
	aggregator := uptime.NewAggregator(st)

	// Initialize WebSocket hub
	hub := websocket.NewHub(cfg.JWTSecret, cfg.CORSOrigins)
	go hub.Run(ctx)

	// Initialize notification dispatcher
	dispatcher := notification.NewDispatcher(st, notification.DispatcherConfig{
		Workers:       cfg.Notify.Workers,
		QueueSize:     cfg.Notify.QueueSize,
		RatePerSecond: cfg.Notify.RatePerSecond,
	})
	dispatcher.Start(ctx)

	engine := heartbeat.NewEngine(st, evaluator, dispatcher, hub, notification.NewOpsAlerter(cfg.Notify.OpsWebhookURL), heartbeat.Config{
		RetryAttempts:                cfg.Engine.PersistRetryAttempts,
		RetryBackoff:                 cfg.Engine.PersistRetryBackoff,
		MaxBackoff:                   cfg.Engine.PersistRetryMaxBackoff,
		NotifyMaintenanceTransitions: cfg.Engine.NotifyMaintenanceTransitions,
	})

	// Probes that reach out to user supplied targets go through the guard
	guard := monitor.TargetGuard{AllowPrivate: cfg.AllowPrivateIPs}
	types := monitor.DefaultRegistry()
	for _, kind := range []string{"http", "keyword", "json-query"} {
		types.Register(&monitor.HTTPMonitor{Kind: kind, Guard: guard})
	}
	types.Register(&monitor.TCPMonitor{Guard: guard})

	// Initialize monitor scheduler
	scheduler := monitor.NewScheduler(engine, st, monitor.SchedulerConfig{
		Types:        types,
		TimeoutGrace: cfg.Engine.ProbeTimeoutGrace,
	})
	if err := scheduler.Start(ctx); err != nil {
		log.Fatalf("Failed to start monitor scheduler: %v", err)
	}

	// Initialize job scheduler
	jobScheduler := jobs.NewScheduler(st, aggregator, jobs.Config{
		RetentionDays: cfg.HeartbeatRetentionDays,
		Monitors:      scheduler,
		SyncInterval:  cfg.MonitorSyncInterval,
	})
	if err := jobScheduler.Start(); err != nil {
		log.Fatalf("Failed to start job scheduler: %v", err)
	}

	// Setup API router
	router := api.NewRouter(cfg, api.Server{
		Store:       st,
		Pusher:      scheduler,
		Heartbeats:  engine,
		Maintenance: evaluator,
		Uptime:      aggregator,
		Control:     scheduler,
		WebSocket:   hub.HandleWebSocket,
		Owner:       hub.ParseOwner,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server starting on port %d", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	scheduler.Stop()
	jobScheduler.Stop()
	dispatcher.Close()
	cancel()

	log.Println("Server exited")
}
