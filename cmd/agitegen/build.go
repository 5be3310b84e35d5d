package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/mark3labs/agitegen/internal/agent"
	"github.com/mark3labs/agitegen/internal/config"
	"github.com/mark3labs/agitegen/internal/console"
	"github.com/mark3labs/agitegen/internal/docs"
	"github.com/mark3labs/agitegen/internal/hooks"
	"github.com/mark3labs/agitegen/internal/ios"
	"github.com/mark3labs/agitegen/internal/logger"
	"github.com/mark3labs/agitegen/internal/orchestrator"
	"github.com/mark3labs/agitegen/internal/proc"
	"github.com/mark3labs/agitegen/internal/quota"
	"github.com/mark3labs/agitegen/internal/scaffold"
	"github.com/mark3labs/agitegen/internal/testrun"
	"github.com/mark3labs/agitegen/internal/unmet"
)

var buildFlags struct {
	root      string
	framework string
	skipIOS   bool
	maxPasses int
	noHistory bool
}

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Run the convergence loop until requirements and tests pass",
	Long: `Run the convergence loop until requirements and tests pass.

Each pass searches the project for every requirement symbol and runs the local
test suite. When anything is missing or failing, aider is invoked with the
unmet symbols, the tail of the failing test log and relevant backend docs.
The loop stops after max_passes and exits non-zero if it did not converge.

On success the iOS workflow is dispatched unless --skip-ios is given.`,
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().StringVar(&buildFlags.root, "root", ".", "Project root")
	buildCmd.Flags().StringVar(&buildFlags.framework, "framework", "", "Test runner tag: rn, next, flutter, flutter-web, flutter-desktop (default: detected)")
	buildCmd.Flags().BoolVar(&buildFlags.skipIOS, "skip-ios", false, "Do not dispatch the iOS workflow")
	buildCmd.Flags().IntVar(&buildFlags.maxPasses, "max-passes", 0, "Override max_passes")
	buildCmd.Flags().BoolVar(&buildFlags.noHistory, "no-history", false, "Do not record the build in the session log")
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.RequireAPIKey(); err != nil {
		return err
	}
	if buildFlags.maxPasses > 0 {
		cfg.MaxPasses = buildFlags.maxPasses
	}
	root, err := projectRoot(buildFlags.root)
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

	backend, err := resolveBackend(cfg, root)
	if err != nil {
		return err
	}
	framework := buildFlags.framework
	if framework == "" {
		framework = testrun.DetectFramework(root)
	}
	framework = testrun.NormalizeFramework(framework)
	logger.Info("build %s: backend=%s framework=%s", root, backend, framework)

	checker, err := newChecker(cmd, cfg, runner, root)
	if err != nil {
		return err
	}
	tester := testrun.New(testrun.Config{
		Runner:   runner,
		Console:  out,
		Timeout:  cfg.TestTimeout,
		Emulator: testrun.EmulatorFor(backend, runner, cfg.TestTimeout, cfg.EmulatorGrace),
	})
	editor := agent.NewAider(cfg.EditorBin, root, runner, os.Stdout)

	hookCfg, err := hooks.LoadConfig(root)
	if err != nil {
		return err
	}

	orch, err := orchestrator.New(orchestrator.Config{
		Root:          root,
		Backend:       backend,
		Framework:     framework,
		MaxPasses:     cfg.MaxPasses,
		PlanningModel: cfg.PlanningModel,
		DebugModel:    cfg.DebugModel,
		DataDir:       cfg.DataDir,
		Checker:       checker,
		Tester:        tester,
		Editor:        editor,
		Docs:          docs.PeekDir,
		Hooks:         hookCfg,
		HookRun:       hooks.NewExecutor(runner, root),
		History:       !buildFlags.noHistory,
		Watch:         true,
		Console:       out,
	})
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}
	if err := orch.Start(ctx); err != nil {
		return fmt.Errorf("failed to start orchestrator: %w", err)
	}
	defer func() {
		if err := orch.Stop(); err != nil {
			out.Warn("Error during shutdown: %v", err)
		}
	}()

	meter := quota.New(cfg, runner, nil).StartMeter(ctx)
	res, runErr := orch.Run(ctx)
	if spent, ok := meter.Finish(ctx); ok {
		out.Muted("OpenRouter credit spent this build: $%.4f", spent)
	}
	if runErr != nil {
		if errors.Is(runErr, orchestrator.ErrNotConverged) {
			out.Error("Not converged after %d passes", res.Passes)
		}
		return runErr
	}
	out.Success("Converged after %d edit(s)", res.Edits)

	if buildFlags.skipIOS {
		return nil
	}
	d := ios.New(runner, cfg.GitHubAPIURL, root, out)
	if _, err := d.Run(ctx); err != nil {
		return fmt.Errorf("dispatching iOS workflow: %w", err)
	}
	return nil
}

// resolveBackend picks the backend from config or env, falling back to
// the client module the scaffolder wrote.
func resolveBackend(cfg *config.Config, root string) (string, error) {
	if cfg.Backend != "" {
		return config.NormalizeBackend(cfg.Backend)
	}
	return scaffold.DetectBackend(root), nil
}

// newChecker resolves rg once and returns the checker using it. The data
// directory is excluded so pass logs never satisfy a requirement.
func newChecker(cmd *cobra.Command, cfg *config.Config, runner proc.Runner, root string) (*unmet.Checker, error) {
	r := &unmet.Resolver{
		Runner:     runner,
		Configured: cfg.SearchBin,
		BinDir:     unmet.DefaultBinDir(),
		Installer:  &unmet.Download{Client: &http.Client{Timeout: 5 * time.Minute}},
	}
	bin, err := r.Resolve(cmd.Context())
	if err != nil {
		return nil, err
	}
	return unmet.NewChecker(runner, bin, dataDirExclude(cfg.DataDir, root)), nil
}

// dataDirExclude returns dataDir relative to root, or "" when it lies
// outside the project.
func dataDirExclude(dataDir, root string) string {
	if !filepath.IsAbs(dataDir) {
		return dataDir
	}
	rel, err := filepath.Rel(root, dataDir)
	if err != nil {
		return ""
	}
	return rel
}
