package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/marketcalls/research-call-engine/internal/api"
	"github.com/marketcalls/research-call-engine/internal/config"
	"github.com/marketcalls/research-call-engine/internal/database"
	"github.com/marketcalls/research-call-engine/internal/kafka"
	"github.com/marketcalls/research-call-engine/internal/lifecycle"
	"github.com/marketcalls/research-call-engine/internal/monitor"
	"github.com/marketcalls/research-call-engine/internal/portfolio"
	"github.com/marketcalls/research-call-engine/internal/pricefeed"
	"github.com/marketcalls/research-call-engine/internal/redis"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Connect to database
	db, err := database.New(cfg.Database.ConnectionString())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Run migrations
	if err := runMigrations(cfg.Database.ConnectionString()); err != nil {
		log.Fatalf("Failed to run database migrations: %v", err)
	}
	log.Println("Connected to PostgreSQL database")

	// Connect to Redis
	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Connected to Redis price cache")

	// Create Kafka event publisher
	publisher := kafka.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.EventsTopic)
	defer publisher.Close()
	log.Printf("Kafka event publisher initialized (brokers: %v, topic: %s)",
		cfg.Kafka.Brokers, cfg.Kafka.EventsTopic)

	// Build the price feed: HTTP quote API behind a circuit breaker, fronted
	// by the Redis TTL cache the tick consumer keeps warm.
	httpFeed := pricefeed.NewHTTPFeed(cfg.PriceFeed.BaseURL, cfg.PriceFeed.FetchTimeout)
	breakerFeed := pricefeed.NewBreakerFeed(httpFeed, pricefeed.DefaultBreakerSettings())
	feed := pricefeed.NewCachedFeed(breakerFeed, redisClient, cfg.PriceFeed.CacheTTL)

	// Wire the core
	engine := lifecycle.NewEngine(db, lifecycle.WithPublisher(publisher))
	ledger := portfolio.NewLedger(db, db)
	mon := monitor.New(db, engine, ledger, feed, cfg.Monitor.Interval, cfg.Monitor.Workers)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start the monitoring sweep loop
	go func() {
		log.Printf("Starting monitoring loop (interval: %s, workers: %d)",
			cfg.Monitor.Interval, cfg.Monitor.Workers)
		if err := mon.Run(ctx); err != nil {
			log.Printf("Monitoring loop error: %v", err)
		}
	}()

	// Start the tick consumer that warms the price cache
	ticksConsumer := kafka.NewTicksConsumer(
		cfg.Kafka.Brokers,
		cfg.Kafka.TicksTopic,
		cfg.Kafka.ConsumerGroup,
		redisClient,
		cfg.PriceFeed.CacheTTL,
	)
	go func() {
		log.Printf("Starting Kafka ticks consumer for topic: %s (group: %s-ticks)",
			cfg.Kafka.TicksTopic, cfg.Kafka.ConsumerGroup)
		if err := ticksConsumer.Start(ctx); err != nil {
			log.Printf("Kafka ticks consumer error: %v", err)
		}
	}()

	// Set up HTTP handler and routes
	handler := api.NewHandler(db, engine, ledger, redisClient)
	router := api.SetupRoutes(handler)

	// Create HTTP server
	addr := cfg.Server.Host + ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Starting server on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Cancel context to stop the monitor and the tick consumer
	cancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	if err := ticksConsumer.Close(); err != nil {
		log.Printf("Error closing Kafka ticks consumer: %v", err)
	}

	log.Println("Server stopped")
}

func runMigrations(databaseUrl string) error {
	m, err := migrate.New("file://./db/migrations", databaseUrl)
	if err != nil {
		return err
	}

	// Apply all available migrations up to the latest version
	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return err
	}

	// ErrNoChange simply means the database was already current
	if err == migrate.ErrNoChange {
		log.Println("No migrations to apply; database is up to date.")
	}

	return nil
}
