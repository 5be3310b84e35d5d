package docs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/mark3labs/agitegen/internal/logger"
)

// DocURLs maps a backend to its raw client documentation.
var DocURLs = map[string]string{
	"supabase": "https://raw.githubusercontent.com/supabase/docs/main/clients/js/README.md",
	"firebase": "https://raw.githubusercontent.com/firebase/docs/main/docs/web/setup.md",
}

// DefaultKeywords selects the chunks worth keeping.
var DefaultKeywords = []string{"auth", "user", "database"}

var headingSplit = regexp.MustCompile(`\n##+\s`)

// Result reports what Embed did. Skipped is set when the docs could not be
// fetched or stored; that is never fatal to the caller.
type Result struct {
	Fetched int // chunks in the document
	Matched int // chunks containing a keyword
	Added   int // new chunks stored
	Skipped bool
	Reason  string
}

// Embedder fetches documentation and stores the relevant chunks.
type Embedder struct {
	Client *http.Client
	URLs   map[string]string // defaults to DocURLs
}

// Embed fetches the backend docs, splits them on markdown headings, keeps
// chunks that mention any keyword (case-insensitive) and stores the new
// ones in <root>/embeddings.
func (e *Embedder) Embed(ctx context.Context, backend string, keywords []string, root string) Result {
	urls := e.URLs
	if urls == nil {
		urls = DocURLs
	}
	url, ok := urls[backend]
	if !ok {
		return Result{Skipped: true, Reason: fmt.Sprintf("no docs for backend %q", backend)}
	}

	text, err := e.fetch(ctx, url)
	if err != nil {
		logger.Warn("docs: %v", err)
		return Result{Skipped: true, Reason: err.Error()}
	}

	chunks := Split(text)
	relevant := Filter(chunks, keywords)
	res := Result{Fetched: len(chunks), Matched: len(relevant)}

	store, err := Open(root)
	if err != nil {
		logger.Warn("docs: %v", err)
		return Result{Skipped: true, Reason: err.Error()}
	}
	defer store.Close()

	for _, c := range relevant {
		added, err := store.Add(c)
		if err != nil {
			logger.Warn("docs: %v", err)
			res.Skipped, res.Reason = true, err.Error()
			return res
		}
		if added {
			res.Added++
		}
	}
	logger.Debug("docs: %s: %d chunks, %d relevant, %d new", backend, res.Fetched, res.Matched, res.Added)
	return res
}

func (e *Embedder) fetch(ctx context.Context, url string) (string, error) {
	client := e.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetching %s: %s", url, resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", url, err)
	}
	return string(body), nil
}

// Split cuts a markdown document at level-2-or-deeper headings.
func Split(text string) []string {
	return headingSplit.Split(text, -1)
}

// Filter keeps chunks containing any keyword, ignoring case.
func Filter(chunks, keywords []string) []string {
	var out []string
	for _, c := range chunks {
		lc := strings.ToLower(c)
		for _, k := range keywords {
			if strings.Contains(lc, strings.ToLower(k)) {
				out = append(out, c)
				break
			}
		}
	}
	return out
}
