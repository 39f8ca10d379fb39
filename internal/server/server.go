// Package server exposes the research pipeline over HTTP: job submission
// and control, report retrieval, schedules and auth. It also hosts the
// cron scheduler so recurring questions run inside the serve process.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/shellsage-ai/ResearchHive-sub000/config"
	"github.com/shellsage-ai/ResearchHive-sub000/internal/pipeline"
	"github.com/shellsage-ai/ResearchHive-sub000/internal/queue/streams"
	"github.com/shellsage-ai/ResearchHive-sub000/internal/store"
	"github.com/shellsage-ai/ResearchHive-sub000/internal/telemetry"
)

// Run wires the full serve process and blocks until ctx is cancelled or the
// listener fails. Shutdown drains in-flight requests before returning.
func Run(ctx context.Context, cfg *config.Config, addr string) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	httpLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		httpLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, HTTPError{Error: msg})
		}
	}

	origins := cfg.Server.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Cookie", "Authorization"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	tele, _, _, err := telemetry.Setup(ctx, cfg.Telemetry, telemetry.Options{
		ServiceName:    "researchhive-api",
		ServiceVersion: "dev",
	})
	if err != nil {
		return fmt.Errorf("telemetry setup: %w", err)
	}

	dsn, err := PostgresDSN(cfg)
	if err != nil {
		return err
	}
	st, err := store.NewWithDSN(ctx, dsn)
	if err != nil {
		return err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Storage.Redis.Addr(),
		Password: cfg.Storage.Redis.Password,
		DB:       cfg.Storage.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis connection failed (%s): %w", cfg.Storage.Redis.Addr(), err)
	}
	defer func() { _ = rdb.Close() }()

	pipe, err := pipeline.FromConfig(cfg, st, nil)
	if err != nil {
		return err
	}

	registry := streams.NewSchemaRegistry()
	if err := streams.RegisterBaseSchemas(registry); err != nil {
		return fmt.Errorf("registering event schemas: %w", err)
	}
	relay := streams.NewRelay(streams.NewPublisher(rdb, registry), nil)
	events, unsubscribe := pipe.Subscribe(256)
	defer unsubscribe()
	go relay.Run(ctx, events)

	if cfg.Server.JWTSecret == "" {
		return fmt.Errorf("jwt secret not configured (server.jwt_secret)")
	}
	secret := []byte(cfg.Server.JWTSecret)

	api := e.Group("/api")
	auth := &AuthHandler{Store: st, Secret: secret}
	auth.Register(api.Group("/auth"))
	research := &ResearchHandler{Pipe: pipe, Store: st}
	research.Register(api.Group("/research"), secret)
	schedules := &SchedulesHandler{Store: st}
	schedules.Register(api.Group("/schedules"), secret)

	sched := &Scheduler{Store: st, Pipe: pipe, Rdb: rdb, Stop: make(chan struct{})}
	sched.Start()
	defer close(sched.Stop)

	if addr == "" {
		addr = fmt.Sprintf(":%d", cfg.Server.Port)
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("listening on %s", addr)
		errCh <- e.Start(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		httpLogger.Printf("shutdown: %v", err)
	}
	if err := tele.Shutdown(shutdownCtx); err != nil {
		httpLogger.Printf("telemetry shutdown: %v", err)
	}
	return nil
}

// PostgresDSN builds a connection string from configuration, preferring an
// explicit URL.
func PostgresDSN(cfg *config.Config) (string, error) {
	p := cfg.Storage.Postgres
	if p.URL == "" && (p.Host == "" || p.DBName == "") {
		return "", fmt.Errorf("postgres not configured (storage.postgres.host/dbname or url)")
	}
	return p.DSN(), nil
}
