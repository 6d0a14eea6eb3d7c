package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/rhuss/mcp-census/pkg/config"
	"github.com/rhuss/mcp-census/pkg/datasets"
	"github.com/rhuss/mcp-census/pkg/index"
	"github.com/rhuss/mcp-census/pkg/observability"
	"github.com/rhuss/mcp-census/pkg/server"
	"github.com/rhuss/mcp-census/pkg/tools/builtins/censusapi"
	"github.com/rhuss/mcp-census/pkg/tools/builtins/datasetsearch"
	"github.com/rhuss/mcp-census/pkg/tools/registry"
	transporthttp "github.com/rhuss/mcp-census/pkg/transport/http"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server",
		Long: "Run the MCP server over stdio (the default, for desktop MCP clients) " +
			"or HTTP (streamable HTTP on /mcp and SSE on /sse).",
		Args: cobra.NoArgs,
		RunE: runServe,
	}
	addConfigFlag(cmd.Flags())
	cmd.Flags().String("transport", "", `Transport: "stdio" or "http" (overrides config)`)
	cmd.Flags().IntP("port", "p", 0, "HTTP listen port (overrides config)")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyServeFlags(cmd, cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracing := cfg.Observability.Tracing
	pc := observability.ProviderConfig{ServiceName: tracing.ServiceName, ServiceVersion: version}
	if tracing.Enabled {
		pc.OTLPEndpoint = tracing.Endpoint
		pc.Insecure = tracing.Insecure
	}
	shutdownOTel, err := observability.InitProvider(ctx, pc)
	if err != nil {
		return fmt.Errorf("initialising telemetry: %w", err)
	}
	defer func() {
		if err := shutdownOTel(context.WithoutCancel(ctx)); err != nil {
			slog.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	logger := slog.Default()
	client := newCensusClient(cfg)
	reg := registry.New()
	defer reg.Close()

	ready := func() bool { return true }
	if cfg.Index.Enabled {
		cat, err := newCatalog(ctx, cfg, client, logger)
		if err != nil {
			return err
		}
		defer cat.Close()

		reg.Register(censusapi.New(client, cat.embedder, censusapi.WithRankOptions(index.RankOptions{
			BatchSize:   cfg.Index.BatchSize,
			Concurrency: cfg.Index.Concurrency,
		})))
		reg.Register(datasetsearch.New(cat.searcher))
		ready = cat.builder.Ready

		go func() {
			if err := cat.builder.LoadOrBuild(ctx); err != nil && ctx.Err() == nil {
				logger.Error("dataset index unavailable", "error", err)
			}
		}()

		if expr := cfg.Index.RefreshSchedule; expr != "" {
			sched, err := datasets.NewScheduler(expr, func(ctx context.Context) error {
				_, err := cat.builder.Build(ctx)
				return err
			}, logger)
			if err != nil {
				return err
			}
			sched.Start()
			logger.Info("dataset index refresh scheduled", "schedule", expr, "next", sched.Next())
			defer func() {
				if err := sched.Stop(context.WithoutCancel(ctx)); err != nil {
					logger.Warn("stopping refresh scheduler", "error", err)
				}
			}()
		}
	} else {
		reg.Register(censusapi.New(client, nil))
		logger.Info("dataset index disabled, fetch_datasets is not available")
	}

	s := server.New(reg, version)

	switch cfg.Server.Transport {
	case "http":
		authMW, err := newAuthMiddleware(cfg)
		if err != nil {
			return err
		}
		httpCfg := transporthttp.Config{
			Addr:            ":" + strconv.Itoa(cfg.Server.Port),
			ReadTimeout:     cfg.Server.ReadTimeout,
			WriteTimeout:    cfg.Server.WriteTimeout,
			ShutdownTimeout: cfg.Server.ShutdownTimeout,
			Ready:           ready,
			Auth:            authMW,
			Logger:          logger,
		}
		if cfg.Observability.Metrics.Enabled {
			httpCfg.MetricsPath = cfg.Observability.Metrics.Path
		}
		logger.Info("starting mcp-census", "version", version, "transport", "http",
			"port", cfg.Server.Port, "auth", cfg.Auth.Type, "index", cfg.Index.Backend)
		return transporthttp.NewServer(s, httpCfg).ListenAndServe(ctx)
	default:
		logger.Info("starting mcp-census", "version", version, "transport", "stdio", "index", cfg.Index.Backend)
		err := s.Run(ctx, &mcp.StdioTransport{})
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
}

// applyServeFlags overrides cfg with explicitly set flags and validates
// the result again.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) error {
	changed := false
	if cmd.Flags().Changed("transport") {
		cfg.Server.Transport, _ = cmd.Flags().GetString("transport")
		changed = true
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port, _ = cmd.Flags().GetInt("port")
		changed = true
	}
	if !changed {
		return nil
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	return nil
}
