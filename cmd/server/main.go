package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"venuepos/backend/internal/cache"
	"venuepos/backend/internal/config"
	"venuepos/backend/internal/events"
	"venuepos/backend/internal/httpapi"
	"venuepos/backend/internal/metrics"
	"venuepos/backend/internal/service"
	"venuepos/backend/internal/store"
	"venuepos/backend/internal/store/memory"
	pgstore "venuepos/backend/internal/store/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogger(cfg)

	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatal().Err(err).Msg("invalid security configuration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 3)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback")
		}
		if err := pg.Migrate(ctx); err != nil {
			log.Fatal().Err(err).Msg("postgres migration failed")
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Info().Msg("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		log.Info().Msg("repository: in-memory")
	}

	opts := service.Options{
		VenueID:  cfg.VenueID,
		StatsTTL: cfg.StatsCacheTTL(),
	}

	if cfg.RedisAddr != "" {
		client := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		statsCache := cache.NewRedisStatsCache(client)
		if err := statsCache.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("redis unavailable, live stats stay local to this instance")
			_ = client.Close()
		} else {
			opts.StatsCache = statsCache
			opts.Notifier = cache.NewRedisNotifier(client)
			closers = append(closers, client.Close)
			log.Info().Msg("cache: redis")
		}
	} else {
		log.Info().Msg("cache: local")
	}

	if cfg.AMQPURL != "" {
		publisher, err := events.NewAMQPPublisher(cfg.AMQPURL, events.DefaultQueue)
		if err != nil {
			log.Warn().Err(err).Msg("amqp unavailable, register events are not published")
		} else {
			opts.Publisher = publisher
			log.Info().Str("queue", events.DefaultQueue).Msg("events: amqp")
		}
	}

	var m *metrics.Metrics
	if cfg.PrometheusEnabled {
		m = metrics.New()
	}
	opts.Metrics = m

	svc := service.New(repo, opts)
	auth := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AccessTokenTTL(), repo)
	if err := auth.EnsureAdmin(ctx, cfg.AdminName, cfg.AdminPIN); err != nil {
		log.Fatal().Err(err).Msg("failed to provision admin account")
	}
	api := httpapi.New(svc, auth, cfg.AllowedOrigin, m)

	runCtx, stopAggregator := context.WithCancel(context.Background())
	defer stopAggregator()
	go func() {
		if err := svc.RunAggregator(runCtx); err != nil {
			log.Error().Err(err).Msg("live stats aggregator stopped")
		}
	}()

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Address()).Str("venue", cfg.VenueID).Msg("venue POS backend listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
	stopAggregator()
	if err := svc.Close(); err != nil {
		log.Error().Err(err).Msg("event publisher close error")
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Error().Err(err).Msg("close error")
		}
	}

	log.Info().Msg("server stopped")
}

// setupLogger writes readable output in development and JSON elsewhere.
func setupLogger(cfg config.Config) {
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.Production() {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.AdminName == "" {
		return fmt.Errorf("ADMIN_NAME must be set")
	}
	if len(cfg.AdminPIN) < 6 {
		return fmt.Errorf("ADMIN_PIN must be set and at least 6 digits")
	}
	for _, r := range cfg.AdminPIN {
		if r < '0' || r > '9' {
			return fmt.Errorf("ADMIN_PIN must contain digits only")
		}
	}
	if err := validatePINStrength(cfg.AdminPIN); err != nil {
		return fmt.Errorf("ADMIN_PIN is too weak: %w", err)
	}
	return nil
}

// validatePINStrength rejects PINs that are all the same digit,
// sequential (ascending or descending), or from a known-weak list.
func validatePINStrength(pin string) error {
	known := map[string]bool{
		"123456": true, "654321": true, "000000": true, "111111": true,
		"121212": true, "112233": true, "123123": true, "246810": true,
	}
	if known[pin] {
		return fmt.Errorf("common PIN not allowed")
	}

	allSame := true
	for i := 1; i < len(pin); i++ {
		if pin[i] != pin[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return fmt.Errorf("all-same-digit PIN not allowed")
	}

	ascending, descending := true, true
	for i := 1; i < len(pin); i++ {
		diff := int(pin[i]) - int(pin[i-1])
		if diff != 1 {
			ascending = false
		}
		if diff != -1 {
			descending = false
		}
	}
	if ascending || descending {
		return fmt.Errorf("sequential PIN not allowed")
	}

	return nil
}
