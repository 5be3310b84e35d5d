// Package devserver starts every available local dev target of a project
// and tears them all down together.
package devserver

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/mark3labs/agitegen/internal/console"
	ierr "github.com/mark3labs/agitegen/internal/errors"
	"github.com/mark3labs/agitegen/internal/logger"
	"github.com/mark3labs/agitegen/internal/proc"
)

// ErrNoTargets is returned when nothing in the project can be started.
var ErrNoTargets = errors.New("no dev targets available")

// DefaultGrace is how long a target gets to exit after SIGTERM.
const DefaultGrace = 5 * time.Second

// Target is one dev command.
type Target struct {
	Name string
	Cmd  proc.Command
}

// Env is what Targets inspects; tests substitute it.
type Env struct {
	GOOS     string
	LookPath func(name string) (string, error)
}

// HostEnv describes the running machine.
func HostEnv(runner proc.Runner) Env {
	return Env{GOOS: runtime.GOOS, LookPath: runner.LookPath}
}

// Targets lists the dev commands that can run for root.
func Targets(root string, env Env) []Target {
	has := func(bin string) bool {
		_, err := env.LookPath(bin)
		return err == nil
	}
	exists := func(rel string) bool {
		_, err := os.Stat(filepath.Join(root, rel))
		return err == nil
	}
	darwin := env.GOOS == "darwin"
	expo := has("expo") || exists(filepath.Join("node_modules", ".bin", "expo"))

	var out []Target
	add := func(name, bin string, args ...string) {
		out = append(out, Target{Name: name, Cmd: proc.Command{Name: bin, Args: args, Dir: root}})
	}

	if has("npm") && exists("package.json") {
		add("web", "npm", "run", "dev")
	}
	if expo {
		add("android", "npx", "expo", "run:android")
		if darwin {
			add("ios", "npx", "expo", "run:ios")
		}
	}
	if has("flutter") && exists("pubspec.yaml") {
		add("chrome", "flutter", "run", "-d", "chrome")
		if darwin {
			add("flutter-ios", "flutter", "run", "-d", "ios")
		}
	}
	return out
}

// Starter launches a background process; proc.StartBackground in production.
type Starter func(proc.Command) (*proc.Background, error)

// Server runs a set of targets with prefixed output.
type Server struct {
	Start   Starter
	Output  io.Writer
	Console *console.Console
	Grace   time.Duration
}

// New creates a Server writing to out.
func New(out *console.Console) *Server {
	return &Server{Start: proc.StartBackground, Output: out.Out(), Console: out, Grace: DefaultGrace}
}

// Run starts every target and blocks until ctx is cancelled or all of them
// have exited, then terminates whatever is still running.
func (s *Server) Run(ctx context.Context, targets []Target) error {
	if len(targets) == 0 {
		return ErrNoTargets
	}

	var mu sync.Mutex
	var running []*proc.Background
	var names []string
	for i, t := range targets {
		w := &prefixWriter{mu: &mu, out: s.Output, prefix: console.Label(t.Name, i) + " "}
		t.Cmd.Stdout, t.Cmd.Stderr = w, w

		bg, err := s.Start(t.Cmd)
		if err != nil {
			s.Console.Warn("%s: %v", t.Name, err)
			continue
		}
		s.Console.Step("%s: %s", t.Name, t.Cmd)
		running = append(running, bg)
		names = append(names, t.Name)
	}
	if len(running) == 0 {
		return ErrNoTargets
	}

	allDone := make(chan struct{})
	go func() {
		for _, bg := range running {
			<-bg.Done()
		}
		close(allDone)
	}()

	select {
	case <-ctx.Done():
		s.Console.Muted("Stopping %d dev target(s)", len(running))
	case <-allDone:
	}

	multiErr := &ierr.MultiError{}
	for i, bg := range running {
		if err := bg.Stop(s.Grace); err != nil {
			logger.Warn("devserver: %s: %v", names[i], err)
			multiErr.Append(err)
		}
	}
	return multiErr.ErrorOrNil()
}

// prefixWriter writes complete lines with a prefix. Writers sharing mu
// never interleave within a line.
type prefixWriter struct {
	mu     *sync.Mutex
	out    io.Writer
	prefix string
	buf    []byte
}

func (w *prefixWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		if _, err := io.WriteString(w.out, w.prefix+string(w.buf[:i+1])); err != nil {
			return len(p), err
		}
		w.buf = w.buf[i+1:]
	}
	return len(p), nil
}
