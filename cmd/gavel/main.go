package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gavelio/gavel/internal/auth"
	"github.com/gavelio/gavel/internal/bidding"
	"github.com/gavelio/gavel/internal/cache"
	"github.com/gavelio/gavel/internal/config"
	"github.com/gavelio/gavel/internal/engine"
	"github.com/gavelio/gavel/internal/events"
	"github.com/gavelio/gavel/internal/gateway"
	"github.com/gavelio/gavel/internal/httpapi"
	"github.com/gavelio/gavel/internal/league"
	"github.com/gavelio/gavel/internal/store"
	"github.com/gavelio/gavel/internal/store/memory"
	"github.com/gavelio/gavel/internal/store/postgres"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := clockwork.NewRealClock()

	// Document store
	var st store.Store
	if cfg.Database.InMemory {
		log.Warn().Msg("using in-memory store, state is not durable")
		st = memory.New()
	} else {
		pool, err := postgres.Connect(ctx, cfg.Database.DSN())
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		st = postgres.New(pool)
	}

	// Advisory snapshot cache
	var snapCache engine.SnapshotCache = engine.NopCache{}
	if cfg.Redis.Enabled {
		rdb, err := cache.Connect(ctx, cfg.Redis.Addr, cfg.Redis.DB)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer rdb.Close()
		snapCache = cache.NewSnapshotCache(rdb, 5*time.Second)
	}

	// Event bus
	var bus events.Bus
	var recording *events.RecordingBus
	if cfg.NATS.Enabled {
		jsCfg := events.DefaultJetStreamConfig()
		jsCfg.URL = cfg.NATS.URL
		jsBus, err := events.NewJetStreamBus(ctx, jsCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to NATS")
		}
		defer jsBus.Close()
		bus = jsBus
	} else {
		log.Warn().Msg("NATS disabled, events delivered in-process only")
		recording = events.NewRecordingBus()
		bus = recording
	}

	// Auth
	ttl := time.Duration(cfg.Auth.TokenTTLHours) * time.Hour
	var verifier *auth.Verifier
	if cfg.Auth.PrivateKeyPath != "" {
		verifier, err = auth.NewFromFiles(cfg.Auth.PrivateKeyPath, cfg.Auth.PublicKeyPath, ttl)
	} else {
		log.Warn().Msg("no signing keypair configured, using ephemeral keys")
		verifier, err = auth.NewEphemeral(ttl)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize token verifier")
	}

	// Application layer
	bids := bidding.NewApp(st, clock)
	leagues := league.NewApp(st, clock)
	eng := engine.New(st, bids, bus, snapCache, clock, engine.DefaultConfig())
	gw := gateway.New(eng, leagues, verifier, clock, gateway.DefaultConnectionConfig())

	// Event delivery: JetStream consumer in distributed mode, direct
	// forwarding in single-process mode.
	if cfg.NATS.Enabled {
		consumerCfg := gateway.DefaultJetStreamConsumerConfig()
		consumerCfg.URL = cfg.NATS.URL
		consumer, err := gateway.NewEventConsumer(gw, consumerCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create event consumer")
		}
		defer consumer.Stop()
		go func() {
			if err := consumer.Start(ctx); err != nil {
				log.Error().Err(err).Msg("event consumer failed")
			}
		}()
	} else {
		recording.Forward(func(e *events.Event) {
			if err := gw.HandleEvent(e); err != nil {
				log.Error().Err(err).Str("event_id", e.ID).Msg("event delivery failed")
			}
		})
	}

	// Auction engine: reconciles live auctions and runs their clock loops.
	go func() {
		if err := eng.Run(ctx); err != nil {
			log.Error().Err(err).Msg("engine stopped")
		}
	}()

	api := httpapi.NewServer(eng, bids, leagues, gw, verifier)
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	cancel()
	time.Sleep(1 * time.Second)

	log.Info().Msg("shutdown complete")
}
