package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shellsage-ai/ResearchHive-sub000/config"
	"github.com/shellsage-ai/ResearchHive-sub000/internal/pipeline"
	srv "github.com/shellsage-ai/ResearchHive-sub000/internal/server"
	"github.com/shellsage-ai/ResearchHive-sub000/internal/store"
)

func researchCMD() *cobra.Command {
	var cfgPath string
	var jobType string
	var targetSources int
	var research = &cobra.Command{
		Use:   "research [question]",
		Short: "Run one research job in-process and print the report",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			question := strings.TrimSpace(strings.Join(args, " "))

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			// Persistence is optional for one-shot runs: with Postgres
			// configured the job is checkpointed, without it the run stays
			// in memory.
			var st pipeline.Store
			if dsn, err := srv.PostgresDSN(cfg); err == nil {
				s, err := store.NewWithDSN(ctx, dsn)
				if err != nil {
					return err
				}
				st = s
			}

			pipe, err := pipeline.FromConfig(cfg, st, nil)
			if err != nil {
				return err
			}
			job, err := pipe.Run(ctx, question, jobType, targetSources)
			if err != nil {
				return err
			}
			if job.State != pipeline.StateCompleted {
				return fmt.Errorf("job %s ended %s: %s", job.ID, job.State, job.ErrorMessage)
			}

			fmt.Println(job.Report.Main)
			if job.Report.Alternatives != "" {
				fmt.Println("\nAlternative readings:")
				fmt.Println(job.Report.Alternatives)
			}
			if len(job.Citations) > 0 {
				fmt.Println("\nSources:")
				for _, c := range job.Citations {
					fmt.Printf("  %s %s\n", c.Label, c.URL)
				}
			}
			return nil
		},
	}
	research.Flags().StringVar(&jobType, "type", "research", "job type (research or monitoring)")
	research.Flags().IntVar(&targetSources, "sources", 0, "target source count (default from pipeline.default_target_sources)")
	research.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return research
}
