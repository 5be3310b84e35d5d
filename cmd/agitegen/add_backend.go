package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mark3labs/agitegen/internal/config"
	"github.com/mark3labs/agitegen/internal/console"
	"github.com/mark3labs/agitegen/internal/docs"
	"github.com/mark3labs/agitegen/internal/proc"
	"github.com/mark3labs/agitegen/internal/scaffold"
)

var addBackendFlags struct {
	root      string
	noInstall bool
}

var addBackendCmd = &cobra.Command{
	Use:   "add-backend <supabase|firebase>",
	Short: "Add a backend adapter layer to an existing project",
	Long: `Add a backend adapter layer to an existing project.

Writes the adapter interface, both adapter implementations, the backend
selector and the client module under src/, installs the backend SDK and
embeds the backend docs used by later build passes. Existing files are
overwritten and their diff is shown.`,
	Args: cobra.ExactArgs(1),
	RunE: runAddBackend,
}

func init() {
	addBackendCmd.Flags().StringVar(&addBackendFlags.root, "root", ".", "Project root")
	addBackendCmd.Flags().BoolVar(&addBackendFlags.noInstall, "no-install", false, "Skip npm install of the backend SDK")
}

func runAddBackend(cmd *cobra.Command, args []string) error {
	if _, err := loadConfig(); err != nil {
		return err
	}
	backend, err := config.NormalizeBackend(args[0])
	if err != nil {
		return err
	}
	if backend == config.BackendNone {
		return fmt.Errorf("add-backend needs supabase or firebase")
	}
	root, err := projectRoot(addBackendFlags.root)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	out := console.Default
	s := scaffold.New(proc.NewExec(), out, &docs.Embedder{})
	if err := s.Backend(ctx, root, backend); err != nil {
		return err
	}
	if !addBackendFlags.noInstall {
		if err := s.InstallDeps(ctx, root, backend); err != nil {
			return fmt.Errorf("installing %s dependencies: %w", backend, err)
		}
	}
	out.Success("Added %s backend to %s", backend, root)
	return nil
}
