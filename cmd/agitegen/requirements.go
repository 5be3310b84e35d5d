package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mark3labs/agitegen/internal/console"
	"github.com/mark3labs/agitegen/internal/proc"
	"github.com/mark3labs/agitegen/internal/requirements"
)

var requirementsFlags struct {
	root string
}

var requirementsCmd = &cobra.Command{
	Use:     "requirements",
	Aliases: []string{"reqs"},
	Short:   "Inspect and edit the project's requirement list",
}

var requirementsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print every requirement in requirements.md",
	RunE:  runRequirementsList,
}

var requirementsCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Report which requirement symbols are not yet in the code",
	RunE:  runRequirementsCheck,
}

var requirementsEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open requirements.md in $EDITOR and validate it afterwards",
	RunE:  runRequirementsEdit,
}

func init() {
	requirementsCmd.PersistentFlags().StringVar(&requirementsFlags.root, "root", ".", "Project root")
	requirementsCmd.AddCommand(requirementsListCmd)
	requirementsCmd.AddCommand(requirementsCheckCmd)
	requirementsCmd.AddCommand(requirementsEditCmd)
}

func runRequirementsList(cmd *cobra.Command, args []string) error {
	root, err := projectRoot(requirementsFlags.root)
	if err != nil {
		return err
	}
	reqs, err := requirements.Read(root)
	if err != nil {
		return err
	}

	var b strings.Builder
	for _, r := range reqs {
		if r.Description != "" {
			fmt.Fprintf(&b, "- `%s`: %s\n", r.Symbol, r.Description)
		} else {
			fmt.Fprintf(&b, "- `%s`\n", r.Symbol)
		}
	}
	console.Default.Markdown(fmt.Sprintf("## %d requirements\n\n%s", len(reqs), b.String()))
	return nil
}

func runRequirementsCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	root, err := projectRoot(requirementsFlags.root)
	if err != nil {
		return err
	}
	reqs, err := requirements.Read(root)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	checker, err := newChecker(cmd, cfg, proc.NewExec(), root)
	if err != nil {
		return err
	}
	missing, err := checker.Unmet(ctx, root, reqs)
	if err != nil {
		return err
	}

	out := console.Default
	if len(missing) == 0 {
		out.Success("All %d requirements present", len(reqs))
		return nil
	}
	for _, s := range missing {
		out.Warn("unmet: %s", s)
	}
	return fmt.Errorf("%d of %d requirements unmet", len(missing), len(reqs))
}

func runRequirementsEdit(cmd *cobra.Command, args []string) error {
	root, err := projectRoot(requirementsFlags.root)
	if err != nil {
		return err
	}
	path := requirements.Path(root)
	if !fileExists(path) {
		if err := requirements.Save(root, nil); err != nil {
			return err
		}
	}
	if err := editFile(path); err != nil {
		return err
	}

	reqs, err := requirements.Read(root)
	if err != nil {
		return fmt.Errorf("requirements.md is no longer valid: %w", err)
	}
	console.Default.Success("%d requirements", len(reqs))
	return nil
}
