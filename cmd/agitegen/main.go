package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/awnumar/memguard"
	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/mark3labs/agitegen/internal/config"
	"github.com/mark3labs/agitegen/internal/console"
	"github.com/mark3labs/agitegen/internal/logger"
)

// Version set via ldflags during build
var version = "dev"

func main() {
	defer memguard.Purge()
	defer func() { _ = logger.Close() }()

	if err := fang.Execute(context.Background(), rootCmd, fang.WithVersion(version)); err != nil {
		logger.Error("Command execution failed: %v", err)
		_ = logger.Close()
		// SafeExit wipes locked buffers (the iOS PAT) before exiting.
		memguard.SafeExit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "agitegen",
	Short: "Scaffold apps and drive an AI editor until their requirements and tests pass",
}

func init() {
	rootCmd.Long = console.Banner() + `

agitegen scaffolds React Native, Flutter and Next.js projects, collects their
requirements through a chat with a planning model, then runs aider in a
convergence loop until every requirement symbol exists in the code and the
local test suite passes. Finished builds can dispatch an iOS CI workflow.

Configuration is loaded from multiple sources with the following precedence:
  CLI flags > Environment variables > Project config > Global config > Defaults

Project config: ./agitegen.yml
Global config: ~/.config/agitegen/agitegen.yml`

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(addBackendCmd)
	rootCmd.AddCommand(requirementsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(doctorCmd)
}

// loadConfig loads configuration and points the logger at it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := logger.Setup(cfg.LogLevel, cfg.LogFile); err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}
	return cfg, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

// projectRoot resolves a --root flag to an absolute path.
func projectRoot(root string) (string, error) {
	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolving project root: %w", err)
	}
	if info, err := os.Stat(abs); err != nil || !info.IsDir() {
		return "", fmt.Errorf("project root %s is not a directory", abs)
	}
	return abs, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
