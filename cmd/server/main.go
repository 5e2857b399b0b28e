package main

import (
	"context"
	"dispatch-map-service/internal/adapters/cache"
	"dispatch-map-service/internal/adapters/distance"
	"dispatch-map-service/internal/adapters/repositories"
	"dispatch-map-service/internal/api"
	"dispatch-map-service/internal/config"
	"dispatch-map-service/internal/jsonapi"
	"dispatch-map-service/internal/mapview"
	"dispatch-map-service/internal/platform/db"
	"dispatch-map-service/internal/platform/metrics"
	"dispatch-map-service/internal/platform/obs"
	"dispatch-map-service/internal/ports"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	distanceCacheMaxAge = 30 * 24 * time.Hour
	redisDistanceTTL    = 24 * time.Hour
)

// main is the application composition root.
// It wires concrete adapters (Postgres or the dispatch API, Redis, ORS) behind ports
// and starts the HTTP server.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := obs.NewLogger(cfg.LogLevel)
	ctx = log.WithContext(ctx)

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

type closer func()

func run(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	var cleanups []closer
	defer func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}()

	deps := api.Deps{
		Log:       log,
		Metrics:   metrics.New(),
		JWTSecret: []byte(cfg.JWTSecret),
	}

	var (
		distanceCache ports.DistanceCache
		geocodeCache  ports.GeocodeCache
	)

	if cfg.DatabaseURL != "" {
		conn, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		cleanups = append(cleanups, func() { _ = conn.Close() })

		if err := repositories.InitSchema(ctx, conn); err != nil {
			return err
		}

		distanceCache = cache.NewSQLDistanceCache(conn, distanceCacheMaxAge)
		geocodeCache = cache.NewSQLGeocodeCache(conn)

		repo := repositories.NewPostgresOrderRepository(conn)
		deps.Orders = repo
		deps.Stops = repo
		log.Info().Msg("orders served from postgres")
	} else {
		orders, guard, err := apiOrders(cfg, log)
		if err != nil {
			return err
		}
		deps.Orders = orders
		deps.Stops = orders
		deps.Guard = guard
		log.Info().Str("origin", cfg.APIOrigin).Msg("orders served from the dispatch api")
	}

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse %s: %w", config.KeyRedisURL, err)
		}
		rdb := redis.NewClient(opts)
		cleanups = append(cleanups, func() { _ = rdb.Close() })

		front := cache.NewRedisDistanceCache(rdb, redisDistanceTTL)
		distanceCache = tiered(front, distanceCache)
	}

	if cfg.ORSAPIKey != "" {
		provider, err := distance.NewORSProvider(cfg.ORSAPIKey, distanceCache, geocodeCache, distance.ORSOptions{})
		if err != nil {
			return err
		}
		deps.Distances = provider
		deps.Geocoder = provider
	} else {
		log.Warn().Msgf("%s is not set; driving times, routing and geocoding are disabled", config.KeyORSAPIKey)
	}

	store := mapview.NewStore(mapview.StoreConfig{
		Center:             cfg.MapCenter,
		Zoom:               cfg.MapZoom,
		MaxPoints:          cfg.MaxPoints,
		MinPointsInCluster: cfg.MinPointsInCluster,
	}, deps.Distances, deps.Metrics, log)
	cleanups = append(cleanups, store.Close)
	deps.Maps = store

	// Timeouts are tuned for cold-cache route planning (external API latency).
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewRouter(deps),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// apiOrders reads and moves orders through the dispatch JSON:API backend.
// A rejected token signs the service out; later calls go unauthenticated.
func apiOrders(cfg config.Config, log zerolog.Logger) (*repositories.APIOrderRepository, *jsonapi.Guard, error) {
	creds := jsonapi.NewCredentials(cfg.APIToken)
	client, err := jsonapi.NewClient(jsonapi.ClientConfig{
		APIOrigin:   cfg.APIOrigin,
		Locale:      cfg.APILocale,
		Credentials: creds,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("api client: %w", err)
	}

	guard := &jsonapi.Guard{
		Slot: &jsonapi.ErrorSlot{},
		OnUnauthenticated: func(context.Context) {
			creds.SignOut()
			log.Warn().Msg("api credentials cleared")
		},
	}
	return repositories.NewAPIOrderRepository(client), guard, nil
}

// tiered puts front before back, or uses front alone when there is no back.
func tiered(front *cache.RedisDistanceCache, back ports.DistanceCache) ports.DistanceCache {
	if back == nil {
		return front
	}
	return cache.NewTieredDistanceCache(front, back)
}
