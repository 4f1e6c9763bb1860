package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/datastack-br/perfil-pipeline/internal/worker"
)

var workerStage string

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a stage worker pool (discovery or profile)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		var pool *worker.Pool
		switch workerStage {
		case "discovery":
			if err := cfg.Validate("worker-discovery"); err != nil {
				return err
			}
			e, err := buildEnv(ctx)
			if err != nil {
				return err
			}
			defer e.Close()
			handler := worker.NewDiscoveryHandler(e.DiscoveryAgent, e.Store)
			pool = worker.NewPool("discovery", cfg.Worker.DiscoveryWorkers, e.DiscoveryQueue, handler)
		case "profile":
			if err := cfg.Validate("worker-profile"); err != nil {
				return err
			}
			e, err := buildEnv(ctx)
			if err != nil {
				return err
			}
			defer e.Close()
			handler := worker.NewProfileHandler(e.Extractor, e.Store)
			pool = worker.NewPool("profile", cfg.Worker.ProfileWorkers, e.ProfileQueue, handler)
		default:
			return eris.Errorf("worker: unknown stage %q, want discovery or profile", workerStage)
		}

		pool.SetTunables(cfg.Queue.ClaimBatchSize, time.Duration(cfg.Queue.EmptyClaimSleepMillis)*time.Millisecond)
		pool.Start(ctx)
		zap.L().Info("worker pool started", zap.String("stage", workerStage))

		<-ctx.Done()
		zap.L().Info("worker pool shutting down", zap.String("stage", workerStage))
		shutdownDone := make(chan struct{})
		go func() {
			pool.Shutdown()
			close(shutdownDone)
		}()
		select {
		case <-shutdownDone:
		case <-time.After(30 * time.Second):
			zap.L().Warn("worker pool shutdown timed out, exiting anyway", zap.String("stage", workerStage))
		}

		return nil
	},
}

func init() {
	workerCmd.Flags().StringVar(&workerStage, "stage", "", "stage to run: discovery or profile")
	_ = workerCmd.MarkFlagRequired("stage")
	rootCmd.AddCommand(workerCmd)
}
