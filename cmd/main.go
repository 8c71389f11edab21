/**
 * @description
 * This is the main entry point for the wallet-service. It is responsible for
 * initializing all components of the service, including configuration, database
 * connection, external API clients, message brokers, the accrual engine, the
 * session manager, the scheduled sweeps, and the HTTP server. It wires
 * everything together and starts the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/joho/godotenv: Loads the optional .env file before config.
 * - internal/accrual, internal/api, internal/app, internal/config,
 *   internal/session, internal/store: Internal packages for the service.
 * - pkg/validationclient, pkg/resetclient: Clients for the platform callables.
 * - pkg/rabbitmq: Producer and consumer for the platform event exchange.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/zpdl768/apptech-wallet-service/internal/accrual"
	"github.com/zpdl768/apptech-wallet-service/internal/api"
	"github.com/zpdl768/apptech-wallet-service/internal/app"
	"github.com/zpdl768/apptech-wallet-service/internal/config"
	"github.com/zpdl768/apptech-wallet-service/internal/session"
	"github.com/zpdl768/apptech-wallet-service/internal/store"
	"github.com/zpdl768/apptech-wallet-service/pkg/rabbitmq"
	"github.com/zpdl768/apptech-wallet-service/pkg/resetclient"
	"github.com/zpdl768/apptech-wallet-service/pkg/validationclient"
)

func main() {
	// Load the optional .env file before reading configuration.
	if err := godotenv.Load(); err == nil {
		log.Println("level=info component=bootstrap msg=\".env file loaded\"")
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.InternalAPIKey) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"internal api key must be configured\" env=INTERNAL_API_KEY")
	}
	if strings.TrimSpace(cfg.ValidatorBaseURL) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"validator base url must be configured\" env=VALIDATOR_BASE_URL")
	}

	log.Printf("level=info component=bootstrap msg=\"starting wallet-service\" port=%s", cfg.ServerPort)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}
	poolConfig.MaxConns = 50
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// Initialize the RabbitMQ producer for wallet events. Unavailability
	// degrades to a no-op publisher; wallet events are fire-and-forget.
	var producer rabbitmq.Publisher
	eventProducer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		producer = &rabbitmq.EventProducerFallback{}
	} else {
		defer eventProducer.Close()
		producer = eventProducer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Clients for the platform callables.
	validator := validationclient.NewClient(cfg.ValidatorBaseURL, cfg.ValidatorAPIKey)
	resets := resetclient.NewClient(cfg.ResetBaseURL, cfg.ValidatorAPIKey)

	// Core wiring: document store, accrual engine, session manager.
	repository := store.NewPostgresRepository(dbpool)
	engine := accrual.NewEngine(validator)
	sessions := session.NewManager(
		engine,
		repository,
		resets,
		producer,
		cfg.WalletEventExchange,
		time.Duration(cfg.TypingFlushDebounceMS)*time.Millisecond,
	)
	defer sessions.Close()

	// Optional Redis-backed rate limiting for box rewards.
	var redisClient *redis.Client
	if cfg.BoxRewardRateLimitPerMinute > 0 {
		if strings.TrimSpace(cfg.RedisURL) == "" {
			log.Println("level=warn component=bootstrap msg=\"redis url missing; box reward rate limiting disabled\" env=REDIS_URL")
		} else {
			redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
			if parseErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; box reward rate limiting disabled\" err=%v", parseErr)
			} else {
				redisClient = redis.NewClient(redisOptions)
				pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancelPing()
				if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
					log.Printf("level=warn component=bootstrap msg=\"redis ping failed; box reward rate limiting disabled\" err=%v", pingErr)
					redisClient.Close()
					redisClient = nil
				} else {
					defer redisClient.Close()
					log.Println("level=info component=bootstrap msg=\"redis connected\"")
				}
			}
		}
	}

	// API handlers and router.
	walletHandlers := api.NewWalletHandlers(sessions, cfg.InternalAPIKey)
	if redisClient != nil {
		walletHandlers.SetBoxRewardRateLimiter(
			app.NewRedisRateLimiter(redisClient, cfg.RedisRateLimitPrefix),
			cfg.BoxRewardRateLimitPerMinute,
		)
	}

	router := chi.NewRouter()
	router.Mount("/", api.WalletRoutes(walletHandlers, cfg.IdentityJWKSURL))

	// Account snapshot feed: consume the platform's document-change events and
	// reconcile them into live sessions.
	snapshotConsumer := app.NewAccountSnapshotConsumer(sessions)
	rabbitConsumer, err := rabbitmq.NewConsumer(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"rabbitmq consumer init failed\" err=%v", err)
	}
	defer rabbitConsumer.Close()

	snapshotBindings := map[string]func([]byte) bool{
		"account.snapshot.updated": snapshotConsumer.HandleMessage,
		"account.reset.completed":  snapshotConsumer.HandleMessage,
	}
	if err := rabbitConsumer.ConsumeWithBindings(cfg.AccountEventExchange, cfg.AccountEventQueue, snapshotBindings); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"snapshot consumer start failed\" err=%v", err)
	}

	// Scheduled sweeps: midnight reset detection and idle session teardown.
	jobs := app.NewJobs(sessions, resets, time.Duration(cfg.SessionIdleTimeoutMin)*time.Minute)
	scheduler := app.NewScheduler(jobs, cfg)
	scheduler.Start()
	defer scheduler.Stop()

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	// Deferred session manager close flushes pending typing writes.
	log.Println("level=info component=http msg=\"shutdown complete\"")
}
