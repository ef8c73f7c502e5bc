// Command agentserver runs the agent execution server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/arborio/agentcore/internal/config"
	"github.com/arborio/agentcore/internal/logging"
	"github.com/arborio/agentcore/internal/provider"
	"github.com/arborio/agentcore/internal/server"
	"github.com/arborio/agentcore/internal/storage"
	"github.com/arborio/agentcore/internal/tool"
)

var (
	port     int
	envDir   string
	logLevel string
)

func main() {
	root := &cobra.Command{
		Use:   "agentserver",
		Short: "Agent execution server",
		RunE:  run,
	}

	root.Flags().IntVar(&port, "port", 8080, "Server port")
	root.Flags().StringVar(&envDir, "env-dir", "", "Environment/working directory")
	root.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	logCfg := logging.DefaultConfig()
	logCfg.Level = logging.ParseLevel(logLevel)
	logging.Init(logCfg)

	workDir := envDir
	if workDir == "" {
		var err error
		workDir, err = os.Getwd()
		if err != nil {
			return fmt.Errorf("getwd: %w", err)
		}
	}

	if err := os.MkdirAll(config.StateDir(), 0o755); err != nil {
		return fmt.Errorf("ensure state dir: %w", err)
	}

	appConfig, err := config.Load(workDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	store := storage.New(config.StateDir())

	ctx := context.Background()
	providerReg, err := provider.InitializeProviders(ctx, appConfig)
	if err != nil {
		// A missing API key / unconfigured LLM leaves the env unconfigured;
		// non-LLM routes still serve per spec §7 (config errors).
		logging.Logger.Warn().Err(err).Msg("provider initialization incomplete")
	}

	toolReg := tool.DefaultRegistry(store)

	serverCfg := server.DefaultConfig()
	serverCfg.Port = port
	serverCfg.EnvDir = workDir

	srv := server.New(serverCfg, appConfig, store, providerReg, toolReg)

	if err := srv.InitializeMCP(ctx); err != nil {
		logging.Logger.Warn().Err(err).Msg("mcp initialization incomplete")
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Logger.Info().Int("port", port).Str("dir", workDir).Msg("agentserver listening")
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-quit:
	}

	logging.Logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Close(); err != nil {
		logging.Logger.Warn().Err(err).Msg("orchestrator shutdown error")
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	logging.Logger.Info().Msg("stopped")
	return nil
}
