package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mark3labs/agitegen/internal/console"
	"github.com/mark3labs/agitegen/internal/nats"
	"github.com/mark3labs/agitegen/internal/session"
)

var historyFlags struct {
	root  string
	limit int
	run   string
	json  bool
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the passes of recent builds",
	Long: `Show the passes of recent builds.

Every build records its passes in an event log under the data directory.
history replays that log and prints, for each build, the outcome and what
each pass found and changed.`,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&historyFlags.root, "root", ".", "Project root")
	historyCmd.Flags().IntVarP(&historyFlags.limit, "limit", "n", 5, "Number of builds to show, 0 for all")
	historyCmd.Flags().StringVar(&historyFlags.run, "run", "", "Show only this build run id")
	historyCmd.Flags().BoolVar(&historyFlags.json, "json", false, "Print builds as JSON")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	root, err := projectRoot(historyFlags.root)
	if err != nil {
		return err
	}
	dataDir := cfg.DataDir
	if !filepath.IsAbs(dataDir) {
		dataDir = filepath.Join(root, dataDir)
	}
	if !fileExists(filepath.Join(dataDir, "nats")) {
		console.Default.Muted("No builds recorded in %s", dataDir)
		return nil
	}

	ctx := cmd.Context()
	events, err := nats.Open(ctx, filepath.Join(dataDir, "nats"))
	if err != nil {
		return err
	}
	defer func() { _ = events.Close() }()
	store := session.NewStore(events.JS, events.Stream)

	var builds []*session.Build
	if historyFlags.run != "" {
		b, err := store.LoadBuild(ctx, historyFlags.run)
		if err != nil {
			return err
		}
		builds = []*session.Build{b}
	} else if builds, err = store.ListBuilds(ctx, historyFlags.limit); err != nil {
		return err
	}

	if historyFlags.json {
		data, err := json.MarshalIndent(builds, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling builds: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}
	for _, b := range builds {
		console.Default.Panel(buildTitle(b), formatPasses(b))
	}
	if len(builds) == 0 {
		console.Default.Muted("No builds recorded")
	}
	return nil
}

func buildTitle(b *session.Build) string {
	outcome := b.Outcome
	if outcome == "" {
		outcome = "running"
	}
	return fmt.Sprintf("%s  %s  %s", b.StartedAt.Local().Format(time.DateTime), outcome, b.Run)
}

func formatPasses(b *session.Build) string {
	var lines []string
	lines = append(lines, fmt.Sprintf("%s  backend=%s framework=%s max_passes=%d", b.Project, b.Backend, b.Framework, b.MaxPasses))
	for _, p := range b.Passes {
		tests := "tests failing"
		if p.TestsOK {
			tests = "tests ok"
		}
		line := fmt.Sprintf("pass %d: %d unmet, %s", p.Number, len(p.Unmet), tests)
		if p.Edited {
			line += fmt.Sprintf(", edited with %s (%d files)", p.Model, len(p.Changed))
		}
		line += fmt.Sprintf(" in %s", p.Duration.Round(time.Second))
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
