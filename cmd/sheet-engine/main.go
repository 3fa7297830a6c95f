package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/XavierBriggs/fortuna/services/sheet-engine/internal/config"
	"github.com/XavierBriggs/fortuna/services/sheet-engine/internal/handlers"
	"github.com/XavierBriggs/fortuna/services/sheet-engine/internal/logger"
	"github.com/XavierBriggs/fortuna/services/sheet-engine/internal/metrics"
	"github.com/XavierBriggs/fortuna/services/sheet-engine/internal/pricing"
	"github.com/XavierBriggs/fortuna/services/sheet-engine/internal/recompute"
	"github.com/XavierBriggs/fortuna/services/sheet-engine/internal/scoring"
	"github.com/XavierBriggs/fortuna/services/sheet-engine/internal/sheet"
	"github.com/XavierBriggs/fortuna/services/sheet-engine/internal/source"
	"github.com/XavierBriggs/fortuna/services/sheet-engine/pkg/contracts"
	nba "github.com/XavierBriggs/fortuna/services/sheet-engine/sports/basketball_nba"
)

func main() {
	cfg := config.LoadConfig()

	log := logger.New(logger.Options{
		Service: "sheet-engine",
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
	})

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if cfg.SportKey != nba.SportKey {
		log.Fatal().Str("sport", cfg.SportKey).Msg("no sheets configured for sport")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	profiles, err := scoring.LoadProfiles(cfg.Scoring.ProfilesPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load scoring profiles")
	}

	// Connect to the sheet row store
	db, err := source.Connect(ctx, cfg.Postgres.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Postgres")
	}
	defer db.Close()
	log.Info().Msg("connected to Postgres")

	// Connect to Redis for best prices and the published ranking
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.URL,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	log.Info().Msg("connected to Redis")

	rows := source.NewPostgresSource(db, cfg.Postgres.QueryTimeout, log)
	prices := pricing.NewRedisPrices(redisClient)
	rankIndex := pricing.NewRedisRankIndex(redisClient)
	m := metrics.New()

	recomputer := recompute.NewHTTPRecomputer(recompute.ClientConfig{
		BaseURL:      cfg.Recompute.BaseURL,
		Timeout:      cfg.Recompute.Timeout,
		RatePerSec:   cfg.Recompute.RatePerSec,
		Burst:        cfg.Recompute.Burst,
		MaxAttempts:  cfg.Recompute.MaxAttempts,
		RetryBackoff: cfg.Recompute.RetryBackoff,
	}, nil, log)

	sportCfg := nba.NewConfig()
	sessions := make([]*sheet.Session, 0, len(sportCfg.Sheets))
	for _, sc := range sportCfg.Sheets {
		profile, ok := profiles.Get(sc.Profile)
		if !ok {
			log.Fatal().Str("sheet", sc.Name).Str("profile", sc.Profile).Msg("unknown scoring profile")
		}

		// both sheets share one ranked key; the hit-rate sheet owns it
		var publisher contracts.RankPublisher
		if sc.Name == nba.SheetHitRates {
			publisher = rankIndex
		}

		sessions = append(sessions, sheet.New(sheet.Options{
			Name:           sc.Name,
			SportKey:       cfg.SportKey,
			Profile:        profile,
			DefaultMarkets: sc.DefaultMarkets,
			LoadMarkets:    nba.Markets(),
			KeyStat:        nba.KeyStat,
			Source:         rows,
			Prices:         prices,
			Recomputer:     recomputer,
			Publisher:      publisher,
			Metrics:        m,
			Logger:         log,
		}))
	}
	registry := sheet.NewRegistry(sessions...)

	for _, s := range registry.All() {
		if _, err := s.Refresh(ctx, time.Time{}); err != nil {
			log.Warn().Err(err).Str("sheet", s.Name()).Msg("initial refresh failed")
		}
	}

	handler := handlers.NewHandler(registry, rows, log)

	// Setup router
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(handlers.RequestLogger(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(cfg.Server.RequestTimeout))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", handler.HealthCheck)
	r.Handle("/metrics", m.Handler())
	r.Route("/api/v1", handler.Routes)

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Server.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Strs("sheets", registry.Names()).Msg("sheet engine listening")
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		log.Error().Err(err).Msg("server error")
		cancel()
		os.Exit(1)

	case sig := <-shutdown:
		log.Info().Str("signal", sig.String()).Msg("shutting down")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("graceful shutdown failed")
			if err := srv.Close(); err != nil {
				log.Error().Err(err).Msg("could not stop server")
			}
		}
		waitForRecomputes(registry, 5*time.Second, log)
	}

	log.Info().Msg("shutdown complete")
}

// waitForRecomputes lets in-flight recomputes settle before exit
func waitForRecomputes(registry *sheet.Registry, timeout time.Duration, log zerolog.Logger) {
	done := make(chan struct{})
	go func() {
		for _, s := range registry.All() {
			s.Wait()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		log.Warn().Dur("timeout", timeout).Msg("recomputes still in flight at exit")
	}
}
