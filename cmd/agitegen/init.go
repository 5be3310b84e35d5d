package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"

	"github.com/mark3labs/agitegen/internal/chat"
	"github.com/mark3labs/agitegen/internal/collector"
	"github.com/mark3labs/agitegen/internal/config"
	"github.com/mark3labs/agitegen/internal/console"
	"github.com/mark3labs/agitegen/internal/docs"
	"github.com/mark3labs/agitegen/internal/logger"
	"github.com/mark3labs/agitegen/internal/proc"
	"github.com/mark3labs/agitegen/internal/quota"
	"github.com/mark3labs/agitegen/internal/requirements"
	"github.com/mark3labs/agitegen/internal/scaffold"
	"github.com/mark3labs/agitegen/internal/template"
)

var initFlags struct {
	framework string
	targets   string
	backend   string
	review    bool
}

var initCmd = &cobra.Command{
	Use:   "init <name>",
	Short: "Scaffold a new project and collect its requirements",
	Long: `Scaffold a new project and collect its requirements.

init checks the OpenRouter and GitHub Actions quotas, runs the framework
generator, writes the backend adapter layer, then chats with the planning
model until you type DONE. The resulting requirement list is saved to
requirements.md in the new project.`,
	Args: cobra.ExactArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringVarP(&initFlags.framework, "framework", "f", "rn", "Framework: "+strings.Join(scaffold.Frameworks, ", "))
	initCmd.Flags().StringVarP(&initFlags.targets, "targets", "t", "web,android", "Comma separated target platforms")
	initCmd.Flags().StringVarP(&initFlags.backend, "backend", "b", config.BackendNone, "Backend: none, supabase or firebase")
	initCmd.Flags().BoolVar(&initFlags.review, "review", false, "Open requirements.md in $EDITOR before finishing")
}

func runInit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.RequireAPIKey(); err != nil {
		return err
	}
	backend, err := config.NormalizeBackend(initFlags.backend)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	out := console.Default
	runner := proc.NewExec()
	if err := enforceQuota(ctx, cfg, runner, out); err != nil {
		return err
	}

	name, err := scaffold.ProjectName(args[0])
	if err != nil {
		return err
	}
	root, err := filepath.Abs(filepath.Join(filepath.Dir(args[0]), name))
	if err != nil {
		return fmt.Errorf("resolving project directory: %w", err)
	}
	targets := scaffold.SplitTargets(initFlags.targets)
	logger.Info("init %s: framework=%s targets=%v backend=%s", root, initFlags.framework, targets, backend)

	s := scaffold.New(runner, out, &docs.Embedder{})
	if err := s.Project(ctx, scaffold.Options{
		Root:      root,
		Framework: initFlags.framework,
		Targets:   targets,
		Backend:   backend,
	}); err != nil {
		return fmt.Errorf("scaffolding %s: %w", name, err)
	}
	if err := s.InstallDeps(ctx, root, backend); err != nil {
		return fmt.Errorf("installing %s dependencies: %w", backend, err)
	}

	c := collector.New(chat.NewClient(cfg.APIKey, cfg.OpenRouterURL), cfg.PlanningModel, os.Stdin, out)
	reqs, err := c.Collect(ctx)
	if err != nil {
		return fmt.Errorf("collecting requirements: %w", err)
	}
	if err := requirements.Save(root, reqs); err != nil {
		return err
	}
	out.Success("Saved %d requirements to %s", len(reqs), requirements.Path(root))

	if initFlags.review {
		if err := editFile(requirements.Path(root)); err != nil {
			return err
		}
	}

	out.Panel("Initialization Successful", template.Render(template.NextSteps, template.Variables{Project: name}))
	return nil
}

// enforceQuota runs the quota checks and prints each result.
func enforceQuota(ctx context.Context, cfg *config.Config, runner proc.Runner, out *console.Console) error {
	results, err := quota.New(cfg, runner, nil).Enforce(ctx)
	for _, r := range results {
		switch r.Status {
		case quota.Checked:
			out.Muted("%s ok", r.Name)
		case quota.Skipped:
			out.Warn("%s not checked: %s", r.Name, r.Reason)
		case quota.Breached:
			out.Error("%s: %s", r.Name, r.Reason)
		}
	}
	return err
}

// editFile opens path in $EDITOR and waits for it to close.
func editFile(path string) error {
	c, err := editor.Command("agitegen", path)
	if err != nil {
		return fmt.Errorf("preparing editor: %w", err)
	}
	c.Stdin, c.Stdout, c.Stderr = os.Stdin, os.Stdout, os.Stderr
	if err := c.Run(); err != nil {
		return fmt.Errorf("running editor: %w", err)
	}
	return nil
}
