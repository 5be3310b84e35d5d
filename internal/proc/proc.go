// Package proc runs the external tools agitegen drives: editors, search,
// test runners and emulators. Components take a Runner so tests can script
// command outcomes without spawning processes.
package proc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/mark3labs/agitegen/internal/logger"
)

// waitDelay bounds how long Wait keeps reading pipes after the process exits,
// so orphaned grandchildren holding stdout cannot hang a step.
const waitDelay = 2 * time.Second

// Command describes one process invocation.
type Command struct {
	Name    string
	Args    []string
	Dir     string
	Env     []string      // appended to os.Environ()
	Timeout time.Duration // 0 means no timeout
	Stdin   io.Reader
	Stdout  io.Writer // optional tee for live output
	Stderr  io.Writer // optional tee for live output
	Group   bool      // run in its own process group, killed as a unit
}

// String renders the command line the way it appears in logs.
func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Result is the outcome of a command that started.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
	Duration time.Duration
}

// OK reports a zero exit that did not time out.
func (r Result) OK() bool {
	return r.ExitCode == 0 && !r.TimedOut
}

// Runner executes commands.
//
// Run returns an error only when the command could not be started or the
// caller's context ended; a non-zero exit or a timeout is reported in Result.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
	LookPath(name string) (string, error)
}

// Exec is the Runner backed by os/exec.
type Exec struct{}

// NewExec returns the os/exec Runner.
func NewExec() *Exec { return &Exec{} }

// LookPath resolves name on PATH.
func (*Exec) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

// Run executes cmd and waits for it.
func (*Exec) Run(ctx context.Context, c Command) (Result, error) {
	runCtx := ctx
	cancel := func() {}
	if c.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, c.Timeout)
	}
	defer cancel()

	cmd := exec.CommandContext(runCtx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = append(os.Environ(), c.Env...)
	cmd.Stdin = c.Stdin
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = tee(&stdout, c.Stdout)
	cmd.Stderr = tee(&stderr, c.Stderr)

	if c.Group {
		setGroup(cmd)
		cmd.Cancel = func() error { return killGroup(cmd.Process.Pid) }
	}

	logger.Debug("exec: %s (dir=%s timeout=%s)", c, c.Dir, c.Timeout)
	start := time.Now()
	err := cmd.Run()
	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if ctx.Err() != nil {
		res.ExitCode = -1
		return res, ctx.Err()
	}
	if runCtx.Err() == context.DeadlineExceeded {
		logger.Warn("exec: %s timed out after %s", c, c.Timeout)
		res.TimedOut = true
		res.ExitCode = -1
		return res, nil
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		return res, fmt.Errorf("running %s: %w", c.Name, err)
	}

	logger.Debug("exec: %s exited %d in %s", c, res.ExitCode, res.Duration.Round(time.Millisecond))
	return res, nil
}

func tee(buf *bytes.Buffer, w io.Writer) io.Writer {
	if w == nil {
		return buf
	}
	return io.MultiWriter(buf, w)
}
