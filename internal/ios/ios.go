// Package ios triggers the project's iOS build workflow on GitHub Actions.
package ios

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/awnumar/memguard"
	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"

	"github.com/mark3labs/agitegen/internal/console"
	"github.com/mark3labs/agitegen/internal/logger"
	"github.com/mark3labs/agitegen/internal/proc"
)

const (
	// Workflow is the workflow file dispatched in the project repository.
	Workflow = "ios.yml"
	// Ref is the branch the workflow runs on.
	Ref = "main"

	promptTitle = "Paste PAT for iOS workflow (blank to skip)"
)

// ErrDispatchFailed is returned when GitHub rejects the dispatch.
var ErrDispatchFailed = errors.New("workflow dispatch failed")

// TokenSource asks for a personal access token. A nil buffer means skip.
type TokenSource func(ctx context.Context) (*memguard.LockedBuffer, error)

// Dispatcher resolves the repository and commit and dispatches the workflow.
type Dispatcher struct {
	Runner  proc.Runner
	Client  *http.Client
	APIURL  string // e.g. https://api.github.com
	Root    string
	Token   TokenSource
	Console *console.Console
}

// New creates a Dispatcher that prompts for the token on an interactive
// terminal.
func New(runner proc.Runner, apiURL, root string, out *console.Console) *Dispatcher {
	return &Dispatcher{
		Runner:  runner,
		Client:  &http.Client{Timeout: 30 * time.Second},
		APIURL:  apiURL,
		Root:    root,
		Token:   PromptToken,
		Console: out,
	}
}

// Run dispatches the workflow for the current head commit. It reports
// false when the user skipped the prompt.
func (d *Dispatcher) Run(ctx context.Context) (bool, error) {
	repo, err := d.Repo(ctx)
	if err != nil {
		return false, err
	}
	sha, err := d.HeadSHA(ctx)
	if err != nil {
		return false, err
	}

	token, err := d.Token(ctx)
	if err != nil {
		return false, err
	}
	if token == nil {
		d.Console.Muted("iOS workflow skipped")
		return false, nil
	}
	defer token.Destroy()

	if err := d.Dispatch(ctx, repo, sha, token); err != nil {
		return false, err
	}
	d.Console.Success("Dispatched %s on %s for %s", Workflow, repo, shortSHA(sha))
	return true, nil
}

// Repo returns owner/name of the project's GitHub repository.
func (d *Dispatcher) Repo(ctx context.Context) (string, error) {
	out, err := d.output(ctx, "gh", "repo", "view", "--json", "nameWithOwner")
	if err != nil {
		return "", err
	}
	var view struct {
		NameWithOwner string `json:"nameWithOwner"`
	}
	if err := json.Unmarshal([]byte(out), &view); err != nil || view.NameWithOwner == "" {
		return "", fmt.Errorf("unexpected gh repo view output %q", strings.TrimSpace(out))
	}
	return view.NameWithOwner, nil
}

// HeadSHA returns the commit checked out in the project.
func (d *Dispatcher) HeadSHA(ctx context.Context) (string, error) {
	out, err := d.output(ctx, "git", "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// Dispatch posts the workflow_dispatch request. Any non-2xx status is an
// error.
func (d *Dispatcher) Dispatch(ctx context.Context, repo, sha string, token *memguard.LockedBuffer) error {
	body, err := json.Marshal(map[string]any{
		"ref":    Ref,
		"inputs": map[string]string{"ref": sha},
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/repos/%s/actions/workflows/%s/dispatches", strings.TrimRight(d.APIURL, "/"), repo, Workflow)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token.String())

	logger.Debug("ios: POST %s", url)
	resp, err := d.Client.Do(req)
	if err != nil {
		return fmt.Errorf("dispatching %s: %w", Workflow, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: %s: %s", ErrDispatchFailed, resp.Status, strings.TrimSpace(string(msg)))
	}
	return nil
}

func (d *Dispatcher) output(ctx context.Context, name string, args ...string) (string, error) {
	cmd := proc.Command{Name: name, Args: args, Dir: d.Root}
	res, err := d.Runner.Run(ctx, cmd)
	if err != nil {
		return "", fmt.Errorf("running %s: %w", cmd, err)
	}
	if !res.OK() {
		return "", fmt.Errorf("%s exited with code %d: %s", cmd, res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return res.Stdout, nil
}

// Interactive reports whether stdin is a terminal.
func Interactive() bool {
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// PromptToken asks for the token with a masked input. Non-interactive
// stdin, a blank answer or an aborted prompt all skip.
func PromptToken(ctx context.Context) (*memguard.LockedBuffer, error) {
	if !Interactive() {
		logger.Debug("ios: stdin is not a terminal, skipping token prompt")
		return nil, nil
	}

	var value string
	input := huh.NewInput().
		Title(promptTitle).
		EchoMode(huh.EchoModePassword).
		Value(&value)
	err := huh.NewForm(huh.NewGroup(input)).RunWithContext(ctx)
	if errors.Is(err, huh.ErrUserAborted) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading token: %w", err)
	}
	return Seal(value), nil
}

// Seal moves a token into locked memory. Blank input yields nil.
func Seal(token string) *memguard.LockedBuffer {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	return memguard.NewBufferFromBytes([]byte(token))
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}
