package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mark3labs/agitegen/internal/config"
	"github.com/mark3labs/agitegen/internal/console"
	"github.com/mark3labs/agitegen/internal/proc/proctest"
	"github.com/mark3labs/agitegen/internal/quota"
	"github.com/mark3labs/agitegen/internal/session"
)

func TestResolveBackend(t *testing.T) {
	root := t.TempDir()

	b, err := resolveBackend(&config.Config{}, root)
	require.NoError(t, err)
	assert.Equal(t, config.BackendNone, b)

	require.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "firebaseClient.ts"), nil, 0644))
	b, err = resolveBackend(&config.Config{}, root)
	require.NoError(t, err)
	assert.Equal(t, config.BackendFirebase, b)

	// Configured backend wins over detection.
	b, err = resolveBackend(&config.Config{Backend: "Supabase"}, root)
	require.NoError(t, err)
	assert.Equal(t, config.BackendSupabase, b)

	_, err = resolveBackend(&config.Config{Backend: "mongo"}, root)
	assert.Error(t, err)
}

func TestDataDirExclude(t *testing.T) {
	assert.Equal(t, "agitegen-data", dataDirExclude("agitegen-data", "/proj"))
	assert.Equal(t, filepath.Join("var", "data"), dataDirExclude("/proj/var/data", "/proj"))
	assert.Equal(t, filepath.Join("..", "elsewhere"), dataDirExclude("/elsewhere", "/proj"))
}

func TestProjectRoot(t *testing.T) {
	dir := t.TempDir()
	got, err := projectRoot(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, got)

	_, err = projectRoot(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestFormatPasses(t *testing.T) {
	b := &session.Build{
		Run:       "run-1",
		Project:   "todo",
		Backend:   "supabase",
		Framework: "rn",
		MaxPasses: 5,
		StartedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Passes: []*session.Pass{
			{Number: 1, Unmet: []string{"UserLogin"}, Edited: true, Model: "planner", Changed: []string{"a.ts", "b.ts"}, Duration: 61 * time.Second},
			{Number: 2, TestsOK: true, Duration: 2 * time.Second},
		},
	}
	got := formatPasses(b)
	assert.Contains(t, got, "todo  backend=supabase framework=rn max_passes=5")
	assert.Contains(t, got, "pass 1: 1 unmet, tests failing, edited with planner (2 files) in 1m1s")
	assert.Contains(t, got, "pass 2: 0 unmet, tests ok in 2s")

	assert.Contains(t, buildTitle(b), "running")
	b.Outcome = session.OutcomeConverged
	assert.Contains(t, buildTitle(b), "converged  run-1")
}

func TestEnforceQuota_StalledUsageEndpointSkips(t *testing.T) {
	old := quota.HTTPTimeout
	quota.HTTPTimeout = 200 * time.Millisecond
	t.Cleanup(func() { quota.HTTPTimeout = old })

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	cfg := config.Defaults()
	cfg.APIKey = "sk-test"
	cfg.OpenRouterURL = srv.URL
	runner := proctest.New().Exit("gh api", 0, `{"included_minutes_used": 10}`)
	var buf bytes.Buffer

	done := make(chan error, 1)
	go func() { done <- enforceQuota(context.Background(), cfg, runner, console.New(&buf, &buf)) }()
	select {
	case err := <-done:
		require.NoError(t, err)
		assert.Contains(t, buf.String(), "OpenRouter credits not checked")
	case <-time.After(5 * time.Second):
		t.Fatal("quota check blocked on a stalled usage endpoint")
	}
}

func TestSetupConfig(t *testing.T) {
	old := setupFlags
	t.Cleanup(func() { setupFlags = old })

	setupFlags.backend = "Firebase"
	setupFlags.maxPasses = 3
	setupFlags.debugModel = "openai/o4-mini"
	cfg, err := setupConfig()
	require.NoError(t, err)
	assert.Equal(t, config.BackendFirebase, cfg.Backend)
	assert.Equal(t, 3, cfg.MaxPasses)
	assert.Equal(t, "openai/o4-mini", cfg.DebugModel)
	assert.Equal(t, config.Defaults().PlanningModel, cfg.PlanningModel)

	setupFlags.maxPasses = -1
	_, err = setupConfig()
	assert.Error(t, err)

	setupFlags.maxPasses = 0
	setupFlags.backend = "mongo"
	_, err = setupConfig()
	assert.Error(t, err)
}

func TestReportEnv(t *testing.T) {
	var buf bytes.Buffer
	out := console.New(&buf, &buf)

	reportEnv(out, []config.EnvOverride{{Key: "max_passes", Env: "AGITEGEN_MAX_PASSES"}})
	assert.Contains(t, buf.String(), "max_passes is set by AGITEGEN_MAX_PASSES")
	assert.Contains(t, buf.String(), "OPENROUTER_API_KEY is not set")

	buf.Reset()
	reportEnv(out, []config.EnvOverride{{Key: "openrouter_api_key", Env: "OPENROUTER_API_KEY"}})
	assert.NotContains(t, buf.String(), "openrouter_api_key")
	assert.NotContains(t, buf.String(), "not set")
}
