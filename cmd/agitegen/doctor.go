package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mark3labs/agitegen/internal/console"
	"github.com/mark3labs/agitegen/internal/proc"
	"github.com/mark3labs/agitegen/internal/unmet"
)

// tools are the external binaries agitegen drives, with what needs them.
var tools = []struct {
	name string
	use  string
}{
	{"aider", "build (editor)"},
	{"npx", "init, test emulators"},
	{"npm", "init, build tests, run"},
	{"flutter", "flutter projects"},
	{"gh", "quota check, iOS dispatch"},
	{"git", "iOS dispatch"},
	{"firebase", "firebase emulator"},
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Report which external tools agitegen can find",
	RunE:  runDoctor,
}

func runDoctor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out := console.Default
	runner := proc.NewExec()

	missing := 0
	for _, t := range tools {
		name := t.name
		if name == "aider" {
			name = cfg.EditorBin
		}
		if path, err := runner.LookPath(name); err == nil {
			out.Success("%-9s %s", name, path)
		} else {
			out.Warn("%-9s not found (needed for %s)", name, t.use)
			missing++
		}
	}

	r := &unmet.Resolver{Runner: runner, Configured: cfg.SearchBin, BinDir: unmet.DefaultBinDir()}
	if bin, err := r.Resolve(cmd.Context()); err == nil {
		out.Success("%-9s %s", "rg", bin)
	} else {
		out.Warn("%-9s %v (build downloads ripgrep %s)", "rg", err, unmet.RipgrepVersion)
	}

	if err := cfg.RequireAPIKey(); err != nil {
		out.Error("%v", err)
		missing++
	} else {
		out.Success("OPENROUTER_API_KEY set")
	}

	if missing > 0 {
		return fmt.Errorf("%d requirement(s) missing", missing)
	}
	return nil
}
