// Package agent drives the external code-editing assistant and observes the
// files it touches.
package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/mark3labs/agitegen/internal/logger"
	"github.com/mark3labs/agitegen/internal/proc"
)

// ErrEditorFailed is returned when the editor exits non-zero.
var ErrEditorFailed = errors.New("editor failed")

const (
	mapTokens      = 25000
	maxChatHistory = 20000
)

// Aider runs one aider edit per call in the project root. The edit has no
// timeout; it ends when aider exits or ctx is cancelled.
type Aider struct {
	Bin    string // defaults to "aider"
	Root   string
	Runner proc.Runner
	Output io.Writer // live output; nil discards
}

// NewAider creates an Aider for root.
func NewAider(bin, root string, runner proc.Runner, output io.Writer) *Aider {
	if bin == "" {
		bin = "aider"
	}
	return &Aider{Bin: bin, Root: root, Runner: runner, Output: output}
}

// Args returns the aider command line for one edit.
func (a *Aider) Args(model, message string) []string {
	return []string{
		"--continue",
		"--map-tokens", strconv.Itoa(mapTokens),
		"--max-chat-history", strconv.Itoa(maxChatHistory),
		"--model", model,
		"--message", message,
		".",
	}
}

// Edit asks aider to apply message using model.
func (a *Aider) Edit(ctx context.Context, model, message string) error {
	cmd := proc.Command{
		Name:   a.Bin,
		Args:   a.Args(model, message),
		Dir:    a.Root,
		Stdout: a.Output,
		Stderr: a.Output,
	}

	logger.Debug("aider: model=%s message=%d bytes", model, len(message))
	res, err := a.Runner.Run(ctx, cmd)
	if err != nil {
		return fmt.Errorf("running %s: %w", a.Bin, err)
	}
	if res.ExitCode != 0 {
		logger.Error("aider exited with code %d", res.ExitCode)
		return fmt.Errorf("%w: %s exited with code %d", ErrEditorFailed, a.Bin, res.ExitCode)
	}
	logger.Debug("aider: finished in %s", res.Duration)
	return nil
}
