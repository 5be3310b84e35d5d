package main

import (
	"github.com/spf13/cobra"

	"github.com/mark3labs/agitegen/internal/console"
	"github.com/mark3labs/agitegen/internal/devserver"
	"github.com/mark3labs/agitegen/internal/proc"
)

var runFlags struct {
	root string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start every available dev target of the project",
	Long: `Start every available dev target of the project.

Depending on what is installed and what the project contains this runs
npm run dev, expo for Android and iOS, and flutter for Chrome and iOS, each
with prefixed output. Ctrl-C stops all of them.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runFlags.root, "root", ".", "Project root")
}

func runRun(cmd *cobra.Command, args []string) error {
	if _, err := loadConfig(); err != nil {
		return err
	}
	root, err := projectRoot(runFlags.root)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	targets := devserver.Targets(root, devserver.HostEnv(proc.NewExec()))
	return devserver.New(console.Default).Run(ctx, targets)
}
