package testrun

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/agitegen/internal/config"
	"github.com/mark3labs/agitegen/internal/logger"
	"github.com/mark3labs/agitegen/internal/proc"
)

// Emulator provisions a local backend for integration tests.
// Stop must be safe to call even when Start failed.
type Emulator interface {
	Name() string
	Start(ctx context.Context, root string) error
	Stop() error
}

// EmulatorFor returns the emulator for a backend, or nil for none.
func EmulatorFor(backend string, runner proc.Runner, startTimeout, grace time.Duration) Emulator {
	switch backend {
	case config.BackendSupabase:
		return &supabaseEmulator{runner: runner, timeout: startTimeout}
	case config.BackendFirebase:
		return &firebaseEmulator{timeout: startTimeout, grace: grace, start: proc.StartBackground}
	default:
		return nil
	}
}

// supabaseEmulator drives the container-based Supabase local stack.
type supabaseEmulator struct {
	runner  proc.Runner
	timeout time.Duration
	root    string
}

func (e *supabaseEmulator) Name() string { return "supabase" }

func (e *supabaseEmulator) Start(ctx context.Context, root string) error {
	e.root = root
	res, err := e.runner.Run(ctx, proc.Command{
		Name: "npx", Args: []string{"supabase", "start"}, Dir: root, Timeout: e.timeout,
	})
	if err != nil {
		return err
	}
	if !res.OK() {
		return fmt.Errorf("npx supabase start exited %d: %s", res.ExitCode, lastLine(res.Stderr))
	}
	return nil
}

func (e *supabaseEmulator) Stop() error {
	if e.root == "" {
		return nil
	}
	// Teardown runs even after the caller's context is cancelled.
	res, err := e.runner.Run(context.Background(), proc.Command{
		Name: "npx", Args: []string{"supabase", "stop"}, Dir: e.root, Timeout: e.timeout,
	})
	if err != nil {
		return err
	}
	if !res.OK() {
		return fmt.Errorf("npx supabase stop exited %d", res.ExitCode)
	}
	return nil
}

// readyMarker is printed by the Firebase CLI once every emulator is listening.
const readyMarker = "All emulators ready"

// firebaseEmulator runs the Firebase emulator suite as a background process group.
type firebaseEmulator struct {
	timeout time.Duration
	grace   time.Duration
	start   func(proc.Command) (*proc.Background, error)
	bg      *proc.Background
}

func (e *firebaseEmulator) Name() string { return "firebase" }

func (e *firebaseEmulator) Start(ctx context.Context, root string) error {
	out := newWatchWriter(readyMarker)
	bg, err := e.start(proc.Command{
		Name:   "npx",
		Args:   []string{"firebase", "emulators:start"},
		Dir:    root,
		Stdout: out,
		Stderr: out,
	})
	if err != nil {
		return err
	}
	e.bg = bg

	timer := time.NewTimer(e.timeout)
	defer timer.Stop()
	select {
	case <-out.found:
		logger.Debug("firebase emulators ready")
		return nil
	case <-bg.Done():
		return fmt.Errorf("firebase emulators exited early: %s", lastLine(out.String()))
	case <-timer.C:
		return fmt.Errorf("firebase emulators not ready after %s", e.timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *firebaseEmulator) Stop() error {
	if e.bg == nil {
		return nil
	}
	return e.bg.Stop(e.grace)
}

// watchTail is how much recent output a watchWriter keeps for errors.
const watchTail = 4096

// watchWriter closes found when marker first appears in the output. Only
// the last watchTail bytes are kept, and each write scans just the new
// bytes plus enough of the previous ones to catch a split marker.
type watchWriter struct {
	mu     sync.Mutex
	tail   []byte
	marker string
	found  chan struct{}
	seen   bool
}

func newWatchWriter(marker string) *watchWriter {
	return &watchWriter{marker: marker, found: make(chan struct{})}
}

func (w *watchWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.seen {
		carry := len(w.marker) - 1
		if carry > len(w.tail) {
			carry = len(w.tail)
		}
		window := append(w.tail[len(w.tail)-carry:len(w.tail):len(w.tail)], p...)
		if bytes.Contains(window, []byte(w.marker)) {
			w.seen = true
			close(w.found)
		}
	}

	w.tail = append(w.tail, p...)
	if len(w.tail) > watchTail {
		w.tail = append(w.tail[:0:0], w.tail[len(w.tail)-watchTail:]...)
	}
	return len(p), nil
}

func (w *watchWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return string(w.tail)
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
