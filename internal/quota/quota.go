// Package quota checks that the OpenRouter credit balance and the GitHub
// Actions minute allowance can afford a run before any work starts.
//
// Both checks are best effort: a check that cannot be performed is Skipped
// with a reason, never an error. Only a Breached result stops the command.
package quota

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/agitegen/internal/config"
	"github.com/mark3labs/agitegen/internal/logger"
	"github.com/mark3labs/agitegen/internal/proc"
)

// HTTPTimeout bounds each usage request when New is given no client.
var HTTPTimeout = 30 * time.Second

// ErrQuotaExceeded is returned by Enforce when any check is breached.
var ErrQuotaExceeded = errors.New("quota exceeded")

// Status is the outcome of one check.
type Status int

const (
	Checked  Status = iota // performed and within limits
	Skipped                // could not be performed
	Breached               // performed and below threshold
)

func (s Status) String() string {
	switch s {
	case Checked:
		return "ok"
	case Skipped:
		return "skipped"
	case Breached:
		return "breached"
	default:
		return "unknown"
	}
}

// Result describes one check.
type Result struct {
	Name   string
	Status Status
	Reason string
}

// Usage is the OpenRouter credit snapshot.
type Usage struct {
	Available float64 `json:"available"`
	Limit     float64 `json:"limit"`
}

// Guard performs the quota checks.
type Guard struct {
	client           *http.Client
	runner           proc.Runner
	baseURL          string
	apiKey           string
	creditThreshold  float64
	minutesThreshold int
	includedMinutes  int
}

// New builds a Guard from configuration.
func New(cfg *config.Config, runner proc.Runner, client *http.Client) *Guard {
	if client == nil {
		client = &http.Client{Timeout: HTTPTimeout}
	}
	return &Guard{
		client:           client,
		runner:           runner,
		baseURL:          strings.TrimRight(cfg.OpenRouterURL, "/"),
		apiKey:           cfg.APIKey,
		creditThreshold:  cfg.CreditThreshold,
		minutesThreshold: cfg.MinutesThreshold,
		includedMinutes:  cfg.IncludedMinutes,
	}
}

// Enforce runs both checks and returns ErrQuotaExceeded if either is breached.
func (g *Guard) Enforce(ctx context.Context) ([]Result, error) {
	results := []Result{g.CheckCredits(ctx), g.CheckMinutes(ctx)}

	var breached []string
	for _, r := range results {
		switch r.Status {
		case Skipped:
			logger.Warn("quota: skipping %s check: %s", r.Name, r.Reason)
		case Breached:
			breached = append(breached, r.Reason)
		default:
			logger.Debug("quota: %s ok", r.Name)
		}
	}
	if len(breached) > 0 {
		return results, fmt.Errorf("%w: %s", ErrQuotaExceeded, strings.Join(breached, "; "))
	}
	return results, nil
}

// CheckCredits compares available OpenRouter credit against the limit.
func (g *Guard) CheckCredits(ctx context.Context) Result {
	r := Result{Name: "OpenRouter credits"}
	if g.apiKey == "" {
		r.Status, r.Reason = Skipped, "no API key"
		return r
	}
	u, err := g.Usage(ctx)
	if err != nil {
		r.Status, r.Reason = Skipped, err.Error()
		return r
	}
	if u.Limit > 0 && u.Available/u.Limit < g.creditThreshold {
		r.Status = Breached
		r.Reason = fmt.Sprintf("OpenRouter credits low (%g/%g)", u.Available, u.Limit)
		return r
	}
	r.Status = Checked
	return r
}

// Usage fetches the credit snapshot from {base}/usage.
func (g *Guard) Usage(ctx context.Context) (Usage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/usage", nil)
	if err != nil {
		return Usage{}, err
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return Usage{}, fmt.Errorf("fetching usage: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Usage{}, fmt.Errorf("fetching usage: %s", resp.Status)
	}

	var body struct {
		Available *float64 `json:"available"`
		Limit     *float64 `json:"limit"`
		Data      *Usage   `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Usage{}, fmt.Errorf("decoding usage: %w", err)
	}
	switch {
	case body.Available != nil:
		u := Usage{Available: *body.Available}
		if body.Limit != nil {
			u.Limit = *body.Limit
		}
		return u, nil
	case body.Data != nil:
		return *body.Data, nil
	default:
		return Usage{}, errors.New("usage response has no available field")
	}
}

// CheckMinutes compares remaining included GitHub Actions minutes against
// the threshold, using the gh CLI's stored credentials.
func (g *Guard) CheckMinutes(ctx context.Context) Result {
	r := Result{Name: "GitHub Actions minutes"}
	res, err := g.runner.Run(ctx, proc.Command{
		Name: "gh", Args: []string{"api", "/user/settings/billing/actions"}, Timeout: 30 * time.Second,
	})
	if err != nil {
		r.Status, r.Reason = Skipped, err.Error()
		return r
	}
	if !res.OK() {
		r.Status, r.Reason = Skipped, fmt.Sprintf("gh api exited %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
		return r
	}

	var billing struct {
		Used *float64 `json:"included_minutes_used"`
	}
	if err := json.Unmarshal([]byte(res.Stdout), &billing); err != nil {
		r.Status, r.Reason = Skipped, "decoding billing: "+err.Error()
		return r
	}
	if billing.Used == nil {
		r.Status, r.Reason = Skipped, "billing response has no included_minutes_used"
		return r
	}

	remaining := float64(g.includedMinutes) - *billing.Used
	if remaining < float64(g.minutesThreshold) {
		r.Status = Breached
		r.Reason = fmt.Sprintf("GitHub Actions minutes low (%g remaining)", remaining)
		return r
	}
	r.Status = Checked
	return r
}
