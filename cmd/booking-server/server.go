package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/clinic/booking/internal/config"
	"github.com/clinic/booking/internal/domain/booking"
	"github.com/clinic/booking/internal/platform/auth"
	"github.com/clinic/booking/internal/platform/db"
	"github.com/clinic/booking/internal/platform/events"
	"github.com/clinic/booking/internal/platform/middleware"
)

type app struct {
	echo      *echo.Echo
	publisher events.Publisher
	closers   []func()
}

func (a *app) Close() {
	if a.publisher != nil {
		_ = a.publisher.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// pingFunc adapts a plain function to db.Pinger.
type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

// openStore returns the configured reservation store, wrapped in the day
// cache when CACHE_ENABLED is set. pool is nil for the memory driver.
func openStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (store booking.ReservationStore, pool *pgxpool.Pool, err error) {
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		logger.Warn().Msg("using in-memory reservation store; bookings are lost on restart")
		store = booking.NewMemoryStore()
	default:
		pool, err = db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, nil, err
		}
		logger.Info().Msg("connected to database")
		store = booking.NewReservationRepoPG(pool)
	}

	if cfg.CacheEnabled {
		cached, err := booking.NewCachedStore(store, cfg.CacheSize)
		if err != nil {
			if pool != nil {
				pool.Close()
			}
			return nil, nil, fmt.Errorf("create day cache: %w", err)
		}
		store = cached
	}
	return store, pool, nil
}

func newPublisher(cfg *config.Config, logger zerolog.Logger) (events.Publisher, error) {
	if !cfg.EventsEnabled {
		return events.NopPublisher{}, nil
	}
	return events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	store, pool, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a := &app{}
	health := db.HealthHandler(pingFunc(func(context.Context) error { return nil }), nil)
	if pool != nil {
		a.closers = append(a.closers, pool.Close)
		health = db.PoolHealthHandler(pool)
	}

	publisher, err := newPublisher(cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.publisher = publisher

	e := newEcho(cfg, logger)
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/db", health)

	engine := booking.NewEngine(store, booking.DefaultRules())
	handler := booking.NewHandler(engine, booking.SystemClock{Location: loc}, publisher, logger)
	rateLimit := middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
		MaxClients:        cfg.RateLimitIPs,
	})
	handler.RegisterRoutes(e.Group("/api/v1"), rateLimit)

	a.echo = e
	return a, nil
}

func newEcho(cfg *config.Config, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	if cfg.AuthSigningKey != "" {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			SigningKey: []byte(cfg.AuthSigningKey),
			Skipper:    auth.AuthSkipper,
		}))
	} else {
		logger.Warn().Msg("AUTH_SIGNING_KEY not set; every request is treated as admin")
		e.Use(auth.DevAuthMiddleware())
	}
	return e
}
