package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mark3labs/agitegen/internal/config"
	"github.com/mark3labs/agitegen/internal/console"
)

var setupFlags struct {
	project       bool
	force         bool
	backend       string
	planningModel string
	debugModel    string
	maxPasses     int
	editorBin     string
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Write an agitegen config file",
	Long: `Write an agitegen config file.

The file holds the defaults with any of the flags below applied. By default
it goes to ~/.config/agitegen/agitegen.yml; --project writes ./agitegen.yml,
which takes precedence for builds run in this directory.

The OpenRouter API key is never written. setup reports which keys are
currently overridden by AGITEGEN_* environment variables, since those win
over anything in the file.`,
	RunE: runSetup,
}

func init() {
	setupCmd.Flags().BoolVarP(&setupFlags.project, "project", "p", false, "Write ./agitegen.yml instead of the global config")
	setupCmd.Flags().BoolVarP(&setupFlags.force, "force", "f", false, "Overwrite an existing config file")
	setupCmd.Flags().StringVarP(&setupFlags.backend, "backend", "b", "", "Default backend: none, supabase or firebase")
	setupCmd.Flags().StringVar(&setupFlags.planningModel, "planning-model", "", "Model for the first edit and the requirement chat")
	setupCmd.Flags().StringVar(&setupFlags.debugModel, "debug-model", "", "Model for later edits")
	setupCmd.Flags().IntVar(&setupFlags.maxPasses, "max-passes", 0, "Convergence pass limit")
	setupCmd.Flags().StringVar(&setupFlags.editorBin, "editor-bin", "", "aider binary")
}

func runSetup(cmd *cobra.Command, args []string) error {
	path := config.GlobalPath()
	if setupFlags.project {
		path = config.ProjectPath()
	}
	if !setupFlags.force && fileExists(path) {
		return fmt.Errorf("config file already exists at %s\n\nUse --force to overwrite", path)
	}

	cfg, err := setupConfig()
	if err != nil {
		return err
	}
	if setupFlags.project {
		err = config.WriteProject(cfg)
	} else {
		err = config.WriteGlobal(cfg)
	}
	if err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	out := console.Default
	out.Success("Config written to: %s", path)
	reportEnv(out, config.EnvOverrides())
	out.Print("Run 'agitegen init <name>' to get started.")
	return nil
}

// setupConfig applies the setup flags to the defaults and validates the result.
func setupConfig() (*config.Config, error) {
	cfg := config.Defaults()
	if setupFlags.backend != "" {
		b, err := config.NormalizeBackend(setupFlags.backend)
		if err != nil {
			return nil, err
		}
		cfg.Backend = b
	}
	if setupFlags.planningModel != "" {
		cfg.PlanningModel = setupFlags.planningModel
	}
	if setupFlags.debugModel != "" {
		cfg.DebugModel = setupFlags.debugModel
	}
	if setupFlags.maxPasses != 0 {
		cfg.MaxPasses = setupFlags.maxPasses
	}
	if setupFlags.editorBin != "" {
		cfg.EditorBin = setupFlags.editorBin
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// reportEnv lists environment overrides and warns when the API key is missing.
func reportEnv(out *console.Console, overrides []config.EnvOverride) {
	hasKey := false
	for _, o := range overrides {
		if o.Key == "openrouter_api_key" {
			hasKey = true
			continue
		}
		out.Muted("%s is set by %s and overrides the file", o.Key, o.Env)
	}
	if !hasKey {
		out.Warn("OPENROUTER_API_KEY is not set; init and build need it")
	}
}
