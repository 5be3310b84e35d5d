package proc

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/mark3labs/agitegen/internal/logger"
)

// Background is a long-running process started in its own process group.
// Stop terminates the whole group: SIGTERM first, SIGKILL after the grace period.
type Background struct {
	cmd  *exec.Cmd
	name string
	done chan struct{}

	mu      sync.Mutex
	waitErr error
	stopped bool
}

// StartBackground launches c without waiting for it. Output goes to the
// command's Stdout/Stderr writers, or is discarded when they are nil.
func StartBackground(c Command) (*Background, error) {
	cmd := exec.Command(c.Name, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = append(os.Environ(), c.Env...)
	cmd.Stdin = c.Stdin
	cmd.Stdout = orDiscard(c.Stdout)
	cmd.Stderr = orDiscard(c.Stderr)
	cmd.WaitDelay = waitDelay
	setGroup(cmd)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", c.Name, err)
	}
	logger.Debug("background: started %s (pid %d)", c, cmd.Process.Pid)

	b := &Background{cmd: cmd, name: c.String(), done: make(chan struct{})}
	go func() {
		err := cmd.Wait()
		b.mu.Lock()
		b.waitErr = err
		b.mu.Unlock()
		close(b.done)
	}()
	return b, nil
}

// Pid returns the process id, which is also the process group id.
func (b *Background) Pid() int { return b.cmd.Process.Pid }

// Done is closed when the process exits.
func (b *Background) Done() <-chan struct{} { return b.done }

// Err returns the process exit error once Done is closed.
func (b *Background) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.waitErr
}

// Stop terminates the process group and waits for the leader to exit.
// Calling Stop more than once is safe.
func (b *Background) Stop(grace time.Duration) error {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return nil
	}
	b.stopped = true
	b.mu.Unlock()

	select {
	case <-b.done:
		return nil
	default:
	}

	pid := b.Pid()
	logger.Debug("background: terminating %s (pgid %d)", b.name, pid)
	if err := termGroup(pid); err != nil && !isProcessGone(err) {
		logger.Warn("background: SIGTERM %s: %v", b.name, err)
	}

	select {
	case <-b.done:
		return nil
	case <-time.After(grace):
	}

	logger.Warn("background: %s still running after %s, killing", b.name, grace)
	if err := killGroup(pid); err != nil && !isProcessGone(err) {
		return fmt.Errorf("killing %s: %w", b.name, err)
	}
	select {
	case <-b.done:
	case <-time.After(waitDelay):
		return errors.New("process group did not exit after SIGKILL: " + b.name)
	}
	return nil
}

func orDiscard(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}
