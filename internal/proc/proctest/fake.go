// Package proctest provides a scripted proc.Runner for tests.
package proctest

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/mark3labs/agitegen/internal/proc"
)

// Response is the scripted outcome for a command line.
type Response struct {
	Result proc.Result
	Err    error
	// Do runs before the result is returned, e.g. to edit files the way the
	// real tool would.
	Do func(cmd proc.Command)
}

// Runner records every command and answers from a script keyed by command
// line prefix. Unscripted commands succeed with empty output.
type Runner struct {
	mu      sync.Mutex
	script  map[string][]Response
	calls   []proc.Command
	missing map[string]bool
}

// New returns an empty fake Runner.
func New() *Runner {
	return &Runner{script: map[string][]Response{}, missing: map[string]bool{}}
}

// On queues resp for commands whose line starts with prefix. When a prefix
// has several queued responses they are consumed in order and the last one
// repeats.
func (r *Runner) On(prefix string, resp Response) *Runner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.script[prefix] = append(r.script[prefix], resp)
	return r
}

// Exit is shorthand for a response with the given exit code and stdout.
func (r *Runner) Exit(prefix string, code int, stdout string) *Runner {
	return r.On(prefix, Response{Result: proc.Result{ExitCode: code, Stdout: stdout}})
}

// Missing makes LookPath fail for name.
func (r *Runner) Missing(name string) *Runner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.missing[name] = true
	return r
}

// LookPath pretends every binary not marked Missing is installed.
func (r *Runner) LookPath(name string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.missing[name] {
		return "", &exec.Error{Name: name, Err: exec.ErrNotFound}
	}
	return "/usr/bin/" + name, nil
}

// Run records cmd and returns the scripted response.
func (r *Runner) Run(ctx context.Context, cmd proc.Command) (proc.Result, error) {
	if err := ctx.Err(); err != nil {
		return proc.Result{ExitCode: -1}, err
	}

	r.mu.Lock()
	r.calls = append(r.calls, cmd)
	resp, ok := r.match(cmd.String())
	r.mu.Unlock()

	if !ok {
		return proc.Result{}, nil
	}
	if resp.Do != nil {
		resp.Do(cmd)
	}
	return resp.Result, resp.Err
}

// match picks the longest scripted prefix. Callers hold mu.
func (r *Runner) match(line string) (Response, bool) {
	best := ""
	for prefix := range r.script {
		if strings.HasPrefix(line, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	queue, ok := r.script[best]
	if !ok || len(queue) == 0 {
		return Response{}, false
	}
	resp := queue[0]
	if len(queue) > 1 {
		r.script[best] = queue[1:]
	}
	return resp, true
}

// Calls returns the recorded commands in order.
func (r *Runner) Calls() []proc.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]proc.Command(nil), r.calls...)
}

// Lines returns the recorded command lines in order.
func (r *Runner) Lines() []string {
	var lines []string
	for _, c := range r.Calls() {
		lines = append(lines, c.String())
	}
	return lines
}

// Count returns how many recorded commands start with prefix.
func (r *Runner) Count(prefix string) int {
	n := 0
	for _, line := range r.Lines() {
		if strings.HasPrefix(line, prefix) {
			n++
		}
	}
	return n
}

// String is handy in failure messages.
func (r *Runner) String() string {
	return fmt.Sprintf("%q", r.Lines())
}
