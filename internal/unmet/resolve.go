package unmet

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/mark3labs/agitegen/internal/logger"
	"github.com/mark3labs/agitegen/internal/proc"
)

// ErrSearchToolUnavailable is returned when no usable rg can be found or installed.
var ErrSearchToolUnavailable = errors.New("ripgrep (rg) is not available")

var rgVersion = regexp.MustCompile(`ripgrep (\d+)\.`)

// Installer fetches a search binary into a directory and returns its path.
type Installer interface {
	Install(ctx context.Context, dir string) (string, error)
}

// Resolver locates the rg binary. Resolution happens once per command; the
// result is handed to NewChecker.
type Resolver struct {
	Runner     proc.Runner
	Configured string    // explicit path from config; used as-is when set
	BinDir     string    // private install dir, e.g. ~/.agitegen/bin
	Installer  Installer // nil disables the download fallback
}

// DefaultBinDir returns ~/.agitegen/bin.
func DefaultBinDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".agitegen", "bin")
	}
	return filepath.Join(home, ".agitegen", "bin")
}

// Resolve tries, in order: the configured path, an rg of major version 13
// or 14 on PATH, a previously installed copy in BinDir, and finally a fresh
// download into BinDir.
func (r *Resolver) Resolve(ctx context.Context) (string, error) {
	if r.Configured != "" {
		if _, err := os.Stat(r.Configured); err != nil {
			return "", fmt.Errorf("%w: configured search_bin %s: %v", ErrSearchToolUnavailable, r.Configured, err)
		}
		logger.Debug("unmet: using configured rg %s", r.Configured)
		return r.Configured, nil
	}

	if path, err := r.Runner.LookPath("rg"); err == nil {
		if major, ok := r.majorVersion(ctx, path); ok && (major == 13 || major == 14) {
			logger.Debug("unmet: using rg %d at %s", major, path)
			return path, nil
		} else if ok {
			logger.Info("unmet: ignoring rg %d at %s (want 13 or 14)", major, path)
		}
	}

	local := filepath.Join(r.BinDir, "rg")
	if info, err := os.Stat(local); err == nil && !info.IsDir() {
		logger.Debug("unmet: using installed rg at %s", local)
		return local, nil
	}

	if r.Installer == nil {
		return "", ErrSearchToolUnavailable
	}
	logger.Info("unmet: installing rg into %s", r.BinDir)
	path, err := r.Installer.Install(ctx, r.BinDir)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSearchToolUnavailable, err)
	}
	return path, nil
}

func (r *Resolver) majorVersion(ctx context.Context, path string) (int, bool) {
	res, err := r.Runner.Run(ctx, proc.Command{Name: path, Args: []string{"--version"}})
	if err != nil || !res.OK() {
		return 0, false
	}
	m := rgVersion.FindStringSubmatch(res.Stdout)
	if m == nil {
		return 0, false
	}
	major, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return major, true
}
