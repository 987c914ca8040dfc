package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	scenariolab "github.com/Itangalo/scenario-lab-sub001"
	scenariohttp "github.com/Itangalo/scenario-lab-sub001/internal/adapters/http"
	"github.com/Itangalo/scenario-lab-sub001/internal/logging"
	"github.com/Itangalo/scenario-lab-sub001/internal/observability"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API with event streaming and Prometheus metrics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd)
	},
}

func init() {
	serveCmd.Flags().String("addr", ":8080", "Listen address")
	rootCmd.AddCommand(serveCmd)
}

// engineAPI adapts the Engine to the HTTP server's interface, translating the
// wire-level start request into run options.
type engineAPI struct {
	*scenariolab.Engine
}

func (a engineAPI) StartRun(ctx context.Context, req scenariohttp.StartRequest) (string, error) {
	return a.Engine.StartRun(ctx, []byte(req.Scenario), scenariolab.RunOptions{
		EndTurn:        req.EndTurn,
		CreditLimitUSD: req.CreditLimitUSD,
		DryRun:         req.DryRun,
	})
}

func serve(cmd *cobra.Command) error {
	level := slog.LevelInfo
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	logger := logging.NewJSON(level)

	engine, err := newEngine(cmd, scenariolab.WithLogger(logger))
	if err != nil {
		return err
	}
	defer engine.Close()

	registry := prometheus.NewRegistry()
	detach := observability.New(registry).Attach(engine.Bus())
	defer detach()

	handler := scenariohttp.NewHandler(engineAPI{engine},
		scenariohttp.WithLogger(logger),
		scenariohttp.WithMetricsHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})),
	)

	addr, _ := cmd.Flags().GetString("addr")
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
