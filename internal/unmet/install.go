package unmet

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"time"

	"github.com/mark3labs/agitegen/internal/logger"
)

// RipgrepVersion is the release downloaded when no suitable rg is installed.
const RipgrepVersion = "13.0.0"

const releaseBase = "https://github.com/BurntSushi/ripgrep/releases/download"

// Download installs a ripgrep release archive from GitHub.
type Download struct {
	Client  *http.Client
	BaseURL string // defaults to the GitHub releases URL
	GOOS    string // defaults to runtime.GOOS
	GOARCH  string // defaults to runtime.GOARCH
}

// Install downloads the release tarball and extracts the rg binary into dir.
func (d *Download) Install(ctx context.Context, dir string) (string, error) {
	target, err := d.target()
	if err != nil {
		return "", err
	}
	base := d.BaseURL
	if base == "" {
		base = releaseBase
	}
	name := fmt.Sprintf("ripgrep-%s-%s", RipgrepVersion, target)
	url := fmt.Sprintf("%s/%s/%s.tar.gz", base, RipgrepVersion, name)

	client := d.Client
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	logger.Debug("unmet: downloading %s", url)
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("downloading ripgrep: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("downloading ripgrep: %s", resp.Status)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating %s: %w", dir, err)
	}
	dest := filepath.Join(dir, "rg")
	if err := extractBinary(resp.Body, "rg", dest); err != nil {
		return "", err
	}
	return dest, nil
}

// target maps the platform to a ripgrep release triple.
func (d *Download) target() (string, error) {
	goos, goarch := d.GOOS, d.GOARCH
	if goos == "" {
		goos = runtime.GOOS
	}
	if goarch == "" {
		goarch = runtime.GOARCH
	}
	switch {
	case goos == "linux" && goarch == "amd64":
		return "x86_64-unknown-linux-musl", nil
	case goos == "darwin":
		return "x86_64-apple-darwin", nil
	default:
		return "", fmt.Errorf("no ripgrep %s build for %s/%s; install rg manually", RipgrepVersion, goos, goarch)
	}
}

// extractBinary copies the first tar entry whose base name is name to dest.
// The archive is streamed; the partially written file is removed on failure.
func extractBinary(r io.Reader, name, dest string) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("reading archive: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("archive has no %s binary", name)
		}
		if err != nil {
			return fmt.Errorf("reading archive: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg || path.Base(hdr.Name) != name {
			continue
		}

		tmp := dest + ".tmp"
		f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0755)
		if err != nil {
			return err
		}
		if _, err := io.Copy(f, tr); err != nil {
			f.Close()
			os.Remove(tmp)
			return fmt.Errorf("extracting %s: %w", name, err)
		}
		if err := f.Close(); err != nil {
			os.Remove(tmp)
			return err
		}
		return os.Rename(tmp, dest)
	}
}
