// Package unmet finds requirements whose symbol does not yet appear anywhere
// in the project tree.
package unmet

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mark3labs/agitegen/internal/logger"
	"github.com/mark3labs/agitegen/internal/proc"
	"github.com/mark3labs/agitegen/internal/requirements"
)

// excluded paths are never searched: the requirements file would match every
// symbol, and the docs store holds backend docs rather than project code.
var excluded = []string{requirements.FileName, "embeddings"}

// Checker runs one literal search per requirement.
type Checker struct {
	runner  proc.Runner
	bin     string
	exclude []string
}

// NewChecker returns a Checker using an already resolved search binary.
// exclude adds root-relative paths that are never searched, such as the
// data directory holding pass logs and build history.
func NewChecker(runner proc.Runner, bin string, exclude ...string) *Checker {
	globs := append([]string{}, excluded...)
	for _, e := range exclude {
		e = strings.Trim(filepath.ToSlash(filepath.Clean(e)), "/")
		if e == "" || e == "." || strings.HasPrefix(e, "../") || e == ".." {
			continue
		}
		globs = append(globs, e)
	}
	return &Checker{runner: runner, bin: bin, exclude: globs}
}

// Bin returns the search binary the checker invokes.
func (c *Checker) Bin() string { return c.bin }

// Unmet returns the symbols of reqs with no literal occurrence under root,
// in first-seen order and without duplicates. Nothing is cached between calls.
func (c *Checker) Unmet(ctx context.Context, root string, reqs []requirements.Requirement) ([]string, error) {
	var unmet []string
	seen := make(map[string]bool, len(reqs))
	for _, r := range reqs {
		if seen[r.Symbol] {
			continue
		}
		seen[r.Symbol] = true

		n, err := c.Matches(ctx, root, r.Symbol)
		if err != nil {
			return nil, err
		}
		logger.Debug("unmet: %s has %d matches", r.Symbol, n)
		if n == 0 {
			unmet = append(unmet, r.Symbol)
		}
	}
	return unmet, nil
}

// Matches counts literal occurrences of symbol under root.
func (c *Checker) Matches(ctx context.Context, root, symbol string) (int, error) {
	args := []string{"--json", "--fixed-strings"}
	for _, g := range c.exclude {
		args = append(args, "--glob", "!"+g)
	}
	args = append(args, "--", symbol, root)

	res, err := c.runner.Run(ctx, proc.Command{Name: c.bin, Args: args})
	if err != nil {
		return 0, fmt.Errorf("searching for %q: %w", symbol, err)
	}
	// Exit 1 means no match; 2 means some paths could not be read, which
	// still leaves the count of what was searched usable.
	if res.ExitCode > 1 {
		logger.Warn("search for %q reported errors: %s", symbol, strings.TrimSpace(res.Stderr))
	}
	return countMatches(res.Stdout), nil
}

// countMatches counts "match" events in rg --json output. rg emits begin,
// end and summary events even for files without hits, so non-empty output
// alone does not mean the symbol was found.
func countMatches(out string) int {
	n := 0
	scanner := bufio.NewScanner(strings.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var event struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(line, &event); err != nil {
			logger.Debug("unmet: skipping unparseable search event: %v", err)
			continue
		}
		if event.Type == "match" {
			n++
		}
	}
	return n
}
