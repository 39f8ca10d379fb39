package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/shellsage-ai/ResearchHive-sub000/config"
	"github.com/shellsage-ai/ResearchHive-sub000/internal/pipeline"
	"github.com/shellsage-ai/ResearchHive-sub000/internal/queue/streams"
	srv "github.com/shellsage-ai/ResearchHive-sub000/internal/server"
	"github.com/shellsage-ai/ResearchHive-sub000/internal/store"
	"github.com/shellsage-ai/ResearchHive-sub000/internal/telemetry"
	"github.com/shellsage-ai/ResearchHive-sub000/internal/worker"
)

func workerCMD() *cobra.Command {
	var cfgPath string
	var group string
	var concurrency int
	var workerCmd = &cobra.Command{
		Use:   "worker",
		Short: "Consume research requests from the job request stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			// Workers checkpoint every job so an interrupted run can resume,
			// which makes Postgres mandatory here.
			dsn, err := srv.PostgresDSN(cfg)
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

			registry := streams.NewSchemaRegistry()
			if err := streams.RegisterBaseSchemas(registry); err != nil {
				return err
			}
			if err := streams.EnsureGroup(ctx, rdb, streams.StreamJobRequests, group); err != nil {
				return err
			}

			tele, meter, tracer, err := telemetry.Setup(ctx, cfg.Telemetry, telemetry.Options{
				ServiceName:    "researchhive-worker",
				ServiceVersion: "dev",
			})
			if err != nil {
				return err
			}
			defer func() {
				shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
				defer stop()
				_ = tele.Shutdown(shutdownCtx)
			}()

			pipe, err := pipeline.FromConfig(cfg, st, nil)
			if err != nil {
				return err
			}

			consumerName := fmt.Sprintf("worker-%s", uuid.NewString()[:8])
			consumer := streams.NewConsumer(rdb, registry, group, consumerName)
			proc := worker.NewProcessor(nil, pipe, consumer, rdb, streams.StreamJobRequests, concurrency, meter, tracer)
			return proc.Start(ctx)
		},
	}
	workerCmd.Flags().StringVar(&group, "group", worker.DefaultGroup, "consumer group name")
	workerCmd.Flags().IntVar(&concurrency, "concurrency", 2, "jobs processed at once")
	workerCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return workerCmd
}
