package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newScheduleCommand(g *globals) *cobra.Command {
	var (
		interval    time.Duration
		metricsAddr string
		once        bool
	)

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run due recurring templates on an interval and serve /metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := g.open()
			if err != nil {
				return err
			}
			defer a.Close()

			if !cmd.Flags().Changed("interval") {
				if interval, err = a.cfg.RecurringInterval(); err != nil {
					return err
				}
			}
			if !cmd.Flags().Changed("metrics-addr") {
				metricsAddr = a.cfg.Metrics.Addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if once {
				return runBatch(ctx, cmd, a, g)
			}

			var srv *http.Server
			if metricsAddr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.HandlerFor(a.metrics.Registry, promhttp.HandlerOpts{}))
				srv = &http.Server{
					Addr:         metricsAddr,
					Handler:      mux,
					ReadTimeout:  10 * time.Second,
					WriteTimeout: 30 * time.Second,
					IdleTimeout:  60 * time.Second,
				}
				go func() {
					a.logger.Info("metrics server starting", zap.String("addr", metricsAddr))
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						a.logger.Error("metrics server failed", zap.Error(err))
					}
				}()
			}

			a.logger.Info("scheduler started", zap.Duration("interval", interval))
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				if err := runBatch(ctx, cmd, a, g); err != nil {
					a.logger.Error("recurring batch failed", zap.Error(err))
				}
				select {
				case <-ctx.Done():
					a.logger.Info("scheduler stopping")
					if srv != nil {
						shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
						defer cancel()
						if err := srv.Shutdown(shutdownCtx); err != nil {
							return fmt.Errorf("stopping metrics server: %w", err)
						}
					}
					return nil
				case <-ticker.C:
				}
			}
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", time.Hour, "time between batches (default from config)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address for /metrics, empty to disable (default from config)")
	cmd.Flags().BoolVar(&once, "once", false, "run one batch and exit")
	return cmd
}

func runBatch(ctx context.Context, cmd *cobra.Command, a *app, g *globals) error {
	res, err := a.recurring.RunDue(ctx, time.Now(), g.Actor())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Batch %s: %d succeeded, %d failed\n", res.BatchID, res.Succeeded, res.Failed)
	return nil
}
