package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-grounding/pkg/handlers"
	"github.com/ekaya-inc/ekaya-grounding/pkg/intent"
	"github.com/ekaya-inc/ekaya-grounding/pkg/mcp"
	"github.com/ekaya-inc/ekaya-grounding/pkg/mcp/tools"
	"github.com/ekaya-inc/ekaya-grounding/pkg/metrics"
	"github.com/ekaya-inc/ekaya-grounding/pkg/middleware"
	"github.com/ekaya-inc/ekaya-grounding/pkg/services"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Build the value index and serve the grounding MCP tools",
		Long: "Builds the value index in the background and serves the resolve_entity, " +
			"record_entity_choice, clarification_history, index_stats and health tools over " +
			"streamable HTTP (with /health, /ping and /metrics) or stdio.",
		Args: cobra.NoArgs,
		RunE: runServeCommand,
	}
}

func runServeCommand(cmd *cobra.Command, _ []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.logger.Sync() }()
	cfg := a.cfg

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	profiler, columns, err := a.openProfiler(ctx, cmd)
	if err != nil {
		return err
	}
	defer func() { _ = profiler.Close() }()

	store, closeStore, err := a.openPreferences(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	indexerCfg, err := services.NewIndexerConfig(&cfg.Index)
	if err != nil {
		return err
	}
	indexer := services.NewValueIndexer(profiler, indexerCfg, m, a.logger)
	holder := services.NewSnapshotHolder()

	// The first build runs in the background; resolve calls fail with
	// index_not_ready until it is published.
	go func() {
		if _, err := indexer.Refresh(ctx, columns, holder); err != nil {
			a.logger.Error("Initial index build failed", zap.Error(err))
		}
		if cfg.Index.RefreshIntervalMinutes > 0 {
			indexer.RefreshEvery(ctx, columns, holder, time.Duration(cfg.Index.RefreshIntervalMinutes)*time.Minute)
		}
	}()

	resolver := services.NewEntityResolver(holder, store, intent.New(), m, a.logger)

	mcpServer := mcp.NewServer("ekaya-grounding", cfg.Version, a.logger)
	tools.RegisterAll(mcpServer.MCP(), &tools.Deps{
		Resolver:    resolver,
		Snapshots:   holder,
		Preferences: store,
		Logger:      a.logger.Named("tools"),
	}, cfg.Version)

	if cfg.MCP.Transport == "stdio" {
		return mcpServer.ServeStdio()
	}

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, holder, reg, a.logger).RegisterRoutes(mux)
	handlers.NewMCPHandler(mcpServer, a.logger.Named("mcp-http")).RegisterRoutes(mux)

	srv := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           middleware.RequestLogger(a.logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("Starting ekaya-grounding",
			zap.String("addr", srv.Addr),
			zap.String("version", cfg.Version),
			zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
