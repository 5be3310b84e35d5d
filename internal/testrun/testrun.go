// Package testrun runs a project's local lint, unit and integration tests
// and reports a single pass/fail verdict with the combined log.
package testrun

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/agitegen/internal/console"
	ierr "github.com/mark3labs/agitegen/internal/errors"
	"github.com/mark3labs/agitegen/internal/logger"
	"github.com/mark3labs/agitegen/internal/proc"
)

// DefaultTimeout bounds each step when Config.Timeout is zero.
const DefaultTimeout = 5 * time.Minute

// StepResult is the outcome of one step.
type StepResult struct {
	Step    Step
	Skipped bool
	Reason  string // why the step was skipped
	OK      bool
	Log     string // formatted section; empty when skipped
}

// Outcome is the verdict for one run. Success is the AND of executed steps;
// skipped steps do not count.
type Outcome struct {
	Success bool
	Log     string
	Steps   []StepResult
}

// Config configures a Runner.
type Config struct {
	Runner   proc.Runner
	Console  *console.Console
	Timeout  time.Duration
	Emulator Emulator // provisioned before integration steps; nil for none
}

// Runner executes a framework's test sequence.
type Runner struct {
	runner   proc.Runner
	out      *console.Console
	timeout  time.Duration
	emulator Emulator
}

// New creates a Runner.
func New(cfg Config) *Runner {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Console == nil {
		cfg.Console = console.Default
	}
	return &Runner{
		runner:   cfg.Runner,
		out:      cfg.Console,
		timeout:  cfg.Timeout,
		emulator: cfg.Emulator,
	}
}

// Run executes every runnable step in order without stopping at the first
// failure. The only error is cancellation of ctx; step failures, timeouts
// and missing binaries are part of the Outcome.
func (r *Runner) Run(ctx context.Context, root, framework string) (out Outcome, err error) {
	steps, ok := StepsFor(framework)
	if !ok {
		r.out.Warn("Unknown framework %q, no local tests to run", framework)
		return Outcome{Success: true, Log: "Unknown framework"}, nil
	}

	r.out.Step("Running local test suite")
	out.Success = true
	var sections []string
	var emulatorErr error
	emulatorStarted := false

	teardown := &ierr.MultiError{}
	defer func() {
		if emulatorStarted {
			teardown.Append(r.emulator.Stop())
			if e := teardown.ErrorOrNil(); e != nil {
				logger.Warn("testrun: emulator teardown: %v", e)
				r.out.Warn("%s emulator teardown failed: %v", r.emulator.Name(), e)
			}
		}
	}()

	for _, step := range steps {
		if reason := skipReason(root, step); reason != "" {
			r.out.Muted("Skipping `%s`: %s", step, reason)
			out.Steps = append(out.Steps, StepResult{Step: step, Skipped: true, Reason: reason})
			continue
		}

		if step.Integration && r.emulator != nil && !emulatorStarted {
			r.out.Step("Starting %s emulator", r.emulator.Name())
			emulatorStarted = true
			emulatorErr = r.emulator.Start(ctx, root)
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
		}

		var sr StepResult
		if step.Integration && emulatorErr != nil {
			sr = StepResult{Step: step, Log: formatLog(step.String(), "", "Emulator failed to start: "+emulatorErr.Error())}
			r.out.Error("Skipped `%s`: emulator failed: %v", step, emulatorErr)
		} else {
			sr, err = r.runStep(ctx, root, step)
			if err != nil {
				return out, err
			}
		}

		out.Steps = append(out.Steps, sr)
		sections = append(sections, sr.Log)
		if !sr.OK {
			out.Success = false
		}
	}

	out.Log = strings.TrimSpace(strings.Join(sections, "\n\n"))
	if out.Success {
		r.out.Success("All local tests passed")
	} else {
		r.out.Error("Some local tests failed")
	}
	return out, nil
}

func (r *Runner) runStep(ctx context.Context, root string, step Step) (StepResult, error) {
	line := step.String()
	r.out.Print("Running: `%s`...", line)

	res, err := r.runner.Run(ctx, proc.Command{
		Name:    step.Name,
		Args:    step.Args,
		Dir:     root,
		Timeout: r.timeout,
		Group:   true,
	})
	if ctx.Err() != nil {
		return StepResult{}, ctx.Err()
	}

	sr := StepResult{Step: step}
	switch {
	case err != nil:
		r.out.Error("Error running `%s`: %v", line, err)
		sr.Log = formatLog(line, "", "Error executing command: "+err.Error())
	case res.TimedOut:
		r.out.Error("Timeout: `%s`", line)
		sr.Log = formatLog(line, res.Stdout, fmt.Sprintf("%s\nCommand timed out after %s.", res.Stderr, r.timeout))
	case res.ExitCode != 0:
		r.out.Error("Failed: `%s` (exit code %d)", line, res.ExitCode)
		sr.Log = formatLog(line, res.Stdout, res.Stderr)
	default:
		r.out.Success("Success: `%s`", line)
		sr.OK = true
		sr.Log = formatLog(line, res.Stdout, res.Stderr)
	}
	return sr, nil
}

func formatLog(cmd, stdout, stderr string) string {
	return fmt.Sprintf("=== Log for: `%s` ===\n--- stdout ---\n%s\n--- stderr ---\n%s", cmd, stdout, stderr)
}

// Tail returns the last n lines of log.
func Tail(log string, n int) string {
	lines := strings.Split(strings.TrimRight(log, "\n"), "\n")
	if len(lines) <= n {
		return strings.Join(lines, "\n")
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}
