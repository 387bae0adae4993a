package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/mcdev12/manhunt/go/internal/dbconfig"
	"github.com/mcdev12/manhunt/go/internal/gateway"
	"github.com/mcdev12/manhunt/go/internal/results"
	"github.com/mcdev12/manhunt/go/internal/roomstore"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("LOG_LEVEL") == "debug" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found, using environment variables")
	}

	configPath := os.Getenv("GATEWAY_CONFIG")
	if configPath == "" {
		configPath = "gateway.yaml"
	}
	config, err := loadConfig(configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", configPath).Msg("Failed to load config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbCfg := dbconfig.NewConfigFromEnv()
	dsn := dbCfg.DSN()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create connection pool")
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to ping database")
	}
	log.Info().Str("host", dbCfg.Host).Str("database", dbCfg.Database).Msg("Connected to database")

	store := roomstore.NewPostgresStore(pool)

	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open results database")
	}
	defer sqlDB.Close()
	resultsRepo := results.NewRepository(sqlDB)

	listenerCfg := roomstore.DefaultListenerConfig()
	listenerCfg.DatabaseURL = dsn
	listener, err := roomstore.NewListener(store, listenerCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create room listener")
	}
	go func() {
		if err := listener.Start(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("Room listener stopped")
		}
	}()

	stateProvider := gateway.NewRoomStateProvider(store, resultsRepo, clockwork.NewRealClock())

	service, err := gateway.NewService(config.gatewayConfig(), stateProvider, listener)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create gateway service")
	}
	go func() {
		if err := service.Start(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("Gateway service stopped")
		}
	}()

	mux := http.NewServeMux()
	service.RegisterRoutes(mux)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	corsHandler := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodOptions,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	server := &http.Server{
		Addr:    ":" + config.Port,
		Handler: corsHandler.Handler(mux),
	}

	go func() {
		log.Info().Str("port", config.Port).Msg("Gateway listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info().Msg("Shutting down gateway")

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}
	if err := listener.Stop(); err != nil {
		log.Error().Err(err).Msg("Listener shutdown error")
	}
	log.Info().Msg("Gateway stopped")
}
