// Package main provides the CLI entry point for agentgate, an HTTP gateway
// that orchestrates multi-turn tool-using conversations across several LLM
// vendors behind one uniform API.
//
// Start the server:
//
//	agentgated serve --config agentgate.yaml
//
// List configured providers:
//
//	agentgated providers --config agentgate.yaml
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/relaycore/agentgate/internal/config"
	"github.com/relaycore/agentgate/internal/httpapi"
	"github.com/relaycore/agentgate/internal/keys"
	"github.com/relaycore/agentgate/internal/metrics"
	"github.com/relaycore/agentgate/internal/orchestrator"
	"github.com/relaycore/agentgate/internal/providerfactory"
	"github.com/relaycore/agentgate/internal/session"
	"github.com/relaycore/agentgate/internal/summarizer"
	"github.com/relaycore/agentgate/internal/tools"
)

// Build information, populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))

	root := buildRootCmd()
	if err := root.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "agentgated",
		Short:        "agentgate - multi-provider LLM orchestration gateway",
		Version:      fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage: true,
	}
	root.AddCommand(buildServeCmd(), buildProvidersCmd())
	return root
}

func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway until terminated",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, debug)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "agentgate.yaml", "path to YAML configuration file")
	cmd.Flags().BoolVar(&debug, "debug", false, "enable debug-level logging")
	return cmd
}

func buildProvidersCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "providers",
		Short: "List configured providers and their health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProviders(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "agentgate.yaml", "path to YAML configuration file")
	return cmd
}

func runServe(ctx context.Context, configPath string, debug bool) error {
	if debug {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.Validate(cfg, keys.Validate); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	slog.Info("configuration loaded",
		"environment", cfg.Environment,
		"addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
	)

	factory := providerfactory.New(cfg.KeysByTag(), cfg.ModelsByTag())
	store := session.New()
	registry := tools.NewRegistry()
	collector := metrics.New(version)

	opts := orchestrator.DefaultOptions()
	opts.MaxIterations = cfg.Orchestrator.MaxIterations
	opts.ToolTimeout = cfg.Orchestrator.ToolTimeout
	opts.RequestTimeout = cfg.Orchestrator.RequestTimeout
	opts.SummarizerConfig = summarizer.Config{
		Threshold:  cfg.Summarizer.Threshold,
		KeepRecent: cfg.Summarizer.KeepRecent,
	}

	orch := orchestrator.New(factory, store, registry, collector, opts)

	server := httpapi.New(httpapi.Config{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		CORSOrigins:  cfg.CORSAllowedOrigins,
		Factory:      factory,
		Store:        store,
		Orchestrator: orch,
		Metrics:      collector,
		Logger:       slog.Default(),
	})

	if err := server.Start(); err != nil {
		return fmt.Errorf("failed to start http server: %w", err)
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	<-ctx.Done()

	slog.Info("shutdown signal received, draining in-flight requests")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)

	slog.Info("agentgate stopped gracefully")
	return nil
}

func runProviders(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	factory := providerfactory.New(cfg.KeysByTag(), cfg.ModelsByTag())
	for _, info := range factory.ListProviders() {
		fmt.Printf("%-12s healthy=%-5t tools=%-5t models=%v\n", info.Tag, info.Healthy, info.HasToolSupport, info.Models)
	}
	return nil
}
