// Package hooks runs the optional shell commands a project configures
// around each convergence pass.
package hooks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mark3labs/agitegen/internal/logger"
	"github.com/mark3labs/agitegen/internal/proc"
	"github.com/mark3labs/agitegen/internal/template"
)

// ConfigFileName is the name of the hooks configuration file.
const ConfigFileName = ".agitegen.hooks.yml"

// LoadConfig loads the hooks configuration from the project root.
// Returns nil if the config file doesn't exist (hooks are optional).
// Returns an error only if the file exists but cannot be parsed.
func LoadConfig(root string) (*Config, error) {
	configPath := filepath.Join(root, ConfigFileName)

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Debug("No hooks config found at %s", configPath)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read hooks config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse hooks config: %w", err)
	}

	logger.Debug("Loaded hooks config from %s (version: %d, pre_pass: %d, post_pass: %d)",
		configPath, cfg.Version, len(cfg.Hooks.PrePass), len(cfg.Hooks.PostPass))
	return &cfg, nil
}

// Executor runs hook commands through sh in a project root.
type Executor struct {
	Runner proc.Runner
	Root   string
}

// NewExecutor creates an Executor.
func NewExecutor(runner proc.Runner, root string) *Executor {
	return &Executor{Runner: runner, Root: root}
}

// Execute runs a hook command and returns its output.
// Placeholders in the command ({{project}}, {{pass}}, ...) are expanded first.
// On failure the error is described in the output and nil is returned.
// Only context cancellation is returned as an error.
func (e *Executor) Execute(ctx context.Context, hook *HookConfig, vars template.Variables) (string, error) {
	if hook == nil || hook.Command == "" {
		return "", nil
	}

	command := template.Render(hook.Command, vars)
	logger.Debug("Executing hook command: %s", command)

	timeout := hook.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	res, err := e.Runner.Run(ctx, proc.Command{
		Name:    "sh",
		Args:    []string{"-c", command},
		Dir:     e.Root,
		Timeout: time.Duration(timeout) * time.Second,
		Group:   true,
	})
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if err != nil {
		logger.Warn("Hook command could not start: %v", err)
		return fmt.Sprintf("[Hook command failed: %v]\n", err), nil
	}

	if res.TimedOut {
		logger.Warn("Hook command timed out after %ds: %s", timeout, command)
		return fmt.Sprintf("[Hook timed out after %ds]\nPartial output:\n%s", timeout, res.Stdout), nil
	}

	output := res.Stdout
	if res.Stderr != "" {
		output += "\n[stderr]\n" + res.Stderr
	}
	if res.ExitCode != 0 {
		logger.Warn("Hook command exited with code %d: %s", res.ExitCode, command)
		return fmt.Sprintf("[Hook command failed: exit status %d]\n%s", res.ExitCode, output), nil
	}

	logger.Debug("Hook executed successfully, output length: %d bytes", len(output))
	return output, nil
}

// ExecuteAll runs hooks in order and returns their outputs joined by a
// newline, whether or not they pipe output.
func (e *Executor) ExecuteAll(ctx context.Context, hooks []*HookConfig, vars template.Variables) (string, error) {
	return e.run(ctx, hooks, vars, false)
}

// ExecuteAllPiped runs hooks in order and returns the joined output of the
// hooks with pipe_output set. Hooks without it still run.
func (e *Executor) ExecuteAllPiped(ctx context.Context, hooks []*HookConfig, vars template.Variables) (string, error) {
	return e.run(ctx, hooks, vars, true)
}

func (e *Executor) run(ctx context.Context, hooks []*HookConfig, vars template.Variables, pipedOnly bool) (string, error) {
	var outputs []string
	for _, hook := range hooks {
		out, err := e.Execute(ctx, hook, vars)
		if err != nil {
			return "", err
		}
		if hook == nil || (pipedOnly && !hook.PipeOutput) {
			continue
		}
		outputs = append(outputs, out)
	}
	return strings.Join(outputs, "\n"), nil
}
