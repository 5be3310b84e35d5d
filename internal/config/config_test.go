package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// isolate points XDG and the working directory at a fresh temp dir and
// clears every env var Load reads.
func isolate(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	t.Chdir(tmpDir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, "config"))
	for _, envs := range envBindings {
		for _, env := range envs {
			t.Setenv(env, "")
			_ = os.Unsetenv(env)
		}
	}
	return tmpDir
}

func TestGlobalPath(t *testing.T) {
	t.Run("with XDG_CONFIG_HOME set", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "/custom/config")
		if got := GlobalPath(); got != "/custom/config/agitegen/agitegen.yml" {
			t.Errorf("GlobalPath() = %v", got)
		}
	})

	t.Run("without XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "")
		got := GlobalPath()
		if !filepath.IsAbs(got) {
			t.Errorf("GlobalPath() should return absolute path, got %v", got)
		}
		if !strings.HasSuffix(got, filepath.Join(".config", "agitegen", "agitegen.yml")) {
			t.Errorf("GlobalPath() = %v", got)
		}
	})
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.MaxPasses != 5 {
		t.Errorf("MaxPasses = %d, want 5", cfg.MaxPasses)
	}
	if cfg.TestTimeout != 5*time.Minute {
		t.Errorf("TestTimeout = %s, want 5m", cfg.TestTimeout)
	}
	if cfg.EditorBin != "aider" {
		t.Errorf("EditorBin = %q, want aider", cfg.EditorBin)
	}
	if cfg.PlanningModel == "" || cfg.DebugModel == "" || cfg.PlanningModel == cfg.DebugModel {
		t.Errorf("expected two distinct default models, got %q and %q", cfg.PlanningModel, cfg.DebugModel)
	}
	if cfg.DataDir != ".agitegen" {
		t.Errorf("DataDir = %q, want .agitegen", cfg.DataDir)
	}
	if cfg.APIKey != "" {
		t.Errorf("APIKey should be empty, got %q", cfg.APIKey)
	}
	if !errors.Is(cfg.RequireAPIKey(), ErrMissingCredential) {
		t.Error("RequireAPIKey() should report the missing credential")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("OPENROUTER_API_KEY", "sk-test")
	t.Setenv("AGITEGEN_BACKEND", "firebase")
	t.Setenv("AGITEGEN_MAX_PASSES", "2")
	t.Setenv("AGITEGEN_TEST_TIMEOUT", "30s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.APIKey != "sk-test" {
		t.Errorf("APIKey = %q", cfg.APIKey)
	}
	if cfg.Backend != BackendFirebase {
		t.Errorf("Backend = %q", cfg.Backend)
	}
	if cfg.MaxPasses != 2 {
		t.Errorf("MaxPasses = %d", cfg.MaxPasses)
	}
	if cfg.TestTimeout != 30*time.Second {
		t.Errorf("TestTimeout = %s", cfg.TestTimeout)
	}
	if err := cfg.RequireAPIKey(); err != nil {
		t.Errorf("RequireAPIKey() = %v", err)
	}
}

func TestLoad_ProjectOverridesGlobal(t *testing.T) {
	isolate(t)

	global := Defaults()
	global.DebugModel = "global/model"
	global.LogLevel = "warn"
	if err := WriteGlobal(global); err != nil {
		t.Fatalf("WriteGlobal() error = %v", err)
	}
	if err := os.WriteFile(ProjectPath(), []byte("debug_model: project/model\n"), 0644); err != nil {
		t.Fatalf("write project config: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DebugModel != "project/model" {
		t.Errorf("DebugModel = %q, want project/model", cfg.DebugModel)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn from global config", cfg.LogLevel)
	}
	if cfg.EmulatorGrace != 10*time.Second {
		t.Errorf("EmulatorGrace = %s, want round-tripped 10s", cfg.EmulatorGrace)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  string
		val  string
	}{
		{"zero passes", "AGITEGEN_MAX_PASSES", "0"},
		{"unknown backend", "AGITEGEN_BACKEND", "mongo"},
		{"threshold above one", "AGITEGEN_CREDIT_THRESHOLD", "1.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			t.Setenv(tt.env, tt.val)
			if _, err := Load(); err == nil {
				t.Errorf("Load() expected error for %s=%s", tt.env, tt.val)
			}
		})
	}
}

func TestWriteProject_OmitsAPIKey(t *testing.T) {
	isolate(t)

	cfg := Defaults()
	cfg.APIKey = "sk-secret"
	if err := WriteProject(cfg); err != nil {
		t.Fatalf("WriteProject() error = %v", err)
	}

	data, err := os.ReadFile(ProjectPath())
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	content := string(data)
	if strings.Contains(content, "sk-secret") {
		t.Error("API key must never be written to a config file")
	}
	for _, field := range []string{"max_passes: 5", "editor_bin: aider", "data_dir: .agitegen"} {
		if !strings.Contains(content, field) {
			t.Errorf("config file missing %q\n%s", field, content)
		}
	}
	if !Exists() {
		t.Error("Exists() = false after WriteProject")
	}
}

func TestNormalizeBackend(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", BackendNone, false},
		{"none", BackendNone, false},
		{"Supabase", BackendSupabase, false},
		{" firebase ", BackendFirebase, false},
		{"appwrite", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeBackend(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NormalizeBackend(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("NormalizeBackend(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	isolate(t)
	if got := EnvOverrides(); len(got) != 0 {
		t.Fatalf("expected no overrides, got %v", got)
	}

	t.Setenv("OPENROUTER_API_KEY", "sk-test")
	t.Setenv("AGITEGEN_MAX_PASSES", "3")
	t.Setenv("AGITEGEN_DEBUG_MODEL", "")

	got := EnvOverrides()
	want := []EnvOverride{
		{Key: "max_passes", Env: "AGITEGEN_MAX_PASSES"},
		{Key: "openrouter_api_key", Env: "OPENROUTER_API_KEY"},
	}
	if len(got) != len(want) {
		t.Fatalf("EnvOverrides() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("EnvOverrides()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}
