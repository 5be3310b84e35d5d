// Package scaffold creates new projects: it runs the framework generator,
// writes the backend adapter layer and installs the backend SDK.
package scaffold

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aymanbagabas/go-udiff"
	"github.com/gosimple/slug"

	"github.com/mark3labs/agitegen/internal/config"
	"github.com/mark3labs/agitegen/internal/console"
	"github.com/mark3labs/agitegen/internal/docs"
	"github.com/mark3labs/agitegen/internal/logger"
	"github.com/mark3labs/agitegen/internal/proc"
	"github.com/mark3labs/agitegen/internal/template"
)

// ErrUnknownFramework is returned for a framework tag with no generator.
var ErrUnknownFramework = errors.New("unknown framework")

// generators maps a framework tag to the command that creates a project
// named by the final argument, run from the parent directory.
var generators = map[string][]string{
	"rn":              {"npx", "create-expo-app"},
	"flutter-web":     {"flutter", "create", "--platform", "web"},
	"flutter-desktop": {"flutter", "create", "--platform", "macos,windows,linux"},
	"next":            {"npx", "create-next-app@latest"},
}

// trailing arguments placed after the project name.
var generatorSuffix = map[string][]string{
	"next": {"--eslint"},
}

// backendDeps are installed with npm after scaffolding.
var backendDeps = map[string][]string{
	config.BackendSupabase: {"@supabase/supabase-js", "supabase"},
	config.BackendFirebase: {"firebase", "firebase-tools"},
}

// Frameworks lists the tags accepted by Generate, in help order.
var Frameworks = []string{"rn", "flutter-web", "flutter-desktop", "next"}

// Embedder stores backend documentation for later passes.
type Embedder interface {
	Embed(ctx context.Context, backend string, keywords []string, root string) docs.Result
}

// Scaffolder wraps the external project generators.
type Scaffolder struct {
	Runner  proc.Runner
	Console *console.Console
	Docs    Embedder  // optional
	Output  io.Writer // live generator output; nil discards
}

// New creates a Scaffolder.
func New(runner proc.Runner, out *console.Console, embedder Embedder) *Scaffolder {
	return &Scaffolder{Runner: runner, Console: out, Docs: embedder, Output: out.Out()}
}

// Options describe a new project.
type Options struct {
	Root      string // absolute project directory
	Framework string
	Targets   []string
	Backend   string
}

// ProjectName turns a user-supplied name into a directory name that every
// generator accepts (lowercase, dash separated).
func ProjectName(name string) (string, error) {
	s := slug.Make(filepath.Base(strings.TrimSpace(name)))
	if s == "" {
		return "", fmt.Errorf("invalid project name %q", name)
	}
	return s, nil
}

// SplitTargets splits a comma separated target list, dropping blanks.
func SplitTargets(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Project scaffolds a whole project: generator, adapters and docs.
func (s *Scaffolder) Project(ctx context.Context, opts Options) error {
	if err := os.MkdirAll(opts.Root, 0755); err != nil {
		return fmt.Errorf("creating project directory: %w", err)
	}
	logger.Debug("scaffold: %s framework=%s targets=%v backend=%s", opts.Root, opts.Framework, opts.Targets, opts.Backend)

	if err := s.Generate(ctx, opts.Root, opts.Framework); err != nil {
		return err
	}
	if opts.Backend == config.BackendNone || opts.Backend == "" {
		return nil
	}
	return s.Backend(ctx, opts.Root, opts.Backend)
}

// Generate runs the framework generator for root. The tags "", "none" and
// "skip" run nothing.
func (s *Scaffolder) Generate(ctx context.Context, root, framework string) error {
	switch framework {
	case "", "none", "skip":
		return nil
	}
	gen, ok := generators[framework]
	if !ok {
		return fmt.Errorf("%w %q (use %s)", ErrUnknownFramework, framework, strings.Join(Frameworks, ", "))
	}

	args := append([]string{}, gen[1:]...)
	args = append(args, filepath.Base(root))
	args = append(args, generatorSuffix[framework]...)

	cmd := proc.Command{
		Name:   gen[0],
		Args:   args,
		Dir:    filepath.Dir(root),
		Stdout: s.Output,
		Stderr: s.Output,
	}
	s.Console.Step("%s", cmd)
	return s.run(ctx, cmd)
}

// Backend writes the adapter layer for backend into root and embeds the
// backend docs. Docs failures only warn.
func (s *Scaffolder) Backend(ctx context.Context, root, backend string) error {
	changes, err := WriteFiles(root, template.Variables{
		Project: filepath.Base(root),
		Backend: backend,
		Root:    root,
	})
	if err != nil {
		return err
	}
	for _, c := range changes {
		switch c.Status {
		case StatusCreated:
			s.Console.Success("created %s", c.Path)
		case StatusUpdated:
			s.Console.Warn("overwrote %s", c.Path)
			s.Console.Muted("%s", c.Diff)
		}
	}

	if s.Docs == nil {
		return nil
	}
	res := s.Docs.Embed(ctx, backend, docs.DefaultKeywords, root)
	if res.Skipped {
		s.Console.Warn("docs not embedded: %s", res.Reason)
	} else {
		s.Console.Success("embedded %d of %d %s doc sections", res.Added, res.Matched, backend)
	}
	return nil
}

// InstallDeps installs the backend client SDK and CLI as dev dependencies.
func (s *Scaffolder) InstallDeps(ctx context.Context, root, backend string) error {
	deps, ok := backendDeps[backend]
	if !ok {
		return nil
	}
	cmd := proc.Command{
		Name:   "npm",
		Args:   append(append([]string{"i"}, deps...), "--save-dev"),
		Dir:    root,
		Stdout: s.Output,
		Stderr: s.Output,
	}
	s.Console.Step("%s", cmd)
	return s.run(ctx, cmd)
}

// run executes cmd and treats a non-zero exit as fatal.
func (s *Scaffolder) run(ctx context.Context, cmd proc.Command) error {
	res, err := s.Runner.Run(ctx, cmd)
	if err != nil {
		return fmt.Errorf("running %s: %w", cmd, err)
	}
	if !res.OK() {
		return fmt.Errorf("%s exited with code %d", cmd, res.ExitCode)
	}
	return nil
}

// DetectBackend reports the backend a project was scaffolded with, from the
// client module the adapter layer writes. It returns none when neither
// exists.
func DetectBackend(root string) string {
	for _, b := range []string{config.BackendSupabase, config.BackendFirebase} {
		if _, err := os.Stat(filepath.Join(root, template.ClientFile(b))); err == nil {
			return b
		}
	}
	return config.BackendNone
}

// Status of a written file.
type Status int

const (
	StatusCreated Status = iota
	StatusUpdated
	StatusUnchanged
)

// Change records what WriteFiles did to one file.
type Change struct {
	Path   string
	Status Status
	Diff   string // unified diff for StatusUpdated
}

// WriteFiles renders the backend templates into root. Existing files that
// differ are overwritten and reported with a diff.
func WriteFiles(root string, vars template.Variables) ([]Change, error) {
	files, err := template.BackendFiles(vars)
	if err != nil {
		return nil, err
	}

	changes := make([]Change, 0, len(files))
	for _, f := range files {
		path := filepath.Join(root, filepath.FromSlash(f.Path))
		change := Change{Path: f.Path, Status: StatusCreated}

		old, err := os.ReadFile(path)
		switch {
		case err == nil && string(old) == f.Content:
			change.Status = StatusUnchanged
		case err == nil:
			change.Status = StatusUpdated
			change.Diff = udiff.Unified("a/"+f.Path, "b/"+f.Path, string(old), f.Content)
		case !os.IsNotExist(err):
			return changes, fmt.Errorf("reading %s: %w", f.Path, err)
		}

		if change.Status != StatusUnchanged {
			if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
				return changes, fmt.Errorf("creating %s: %w", filepath.Dir(f.Path), err)
			}
			if err := os.WriteFile(path, []byte(f.Content), 0644); err != nil {
				return changes, fmt.Errorf("writing %s: %w", f.Path, err)
			}
		}
		changes = append(changes, change)
	}
	return changes, nil
}
