// Package config provides centralized configuration management using Viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Backend names accepted by the build and add-backend commands.
const (
	BackendNone     = "none"
	BackendSupabase = "supabase"
	BackendFirebase = "firebase"
)

// ErrMissingCredential is returned by RequireAPIKey when no OpenRouter key is set.
var ErrMissingCredential = errors.New("OPENROUTER_API_KEY environment variable not set")

// Config holds all configuration values for agitegen.
type Config struct {
	APIKey        string        `mapstructure:"openrouter_api_key" yaml:"-"`
	OpenRouterURL string        `mapstructure:"openrouter_base_url" yaml:"openrouter_base_url"`
	GitHubAPIURL  string        `mapstructure:"github_api_url" yaml:"github_api_url"`
	Backend       string        `mapstructure:"backend" yaml:"backend,omitempty"`
	PlanningModel string        `mapstructure:"planning_model" yaml:"planning_model"`
	DebugModel    string        `mapstructure:"debug_model" yaml:"debug_model"`
	MaxPasses     int           `mapstructure:"max_passes" yaml:"max_passes"`
	TestTimeout   time.Duration `mapstructure:"test_timeout" yaml:"test_timeout"`
	EmulatorGrace time.Duration `mapstructure:"emulator_grace" yaml:"emulator_grace"`
	EditorBin     string        `mapstructure:"editor_bin" yaml:"editor_bin"`
	SearchBin     string        `mapstructure:"search_bin" yaml:"search_bin,omitempty"`
	DataDir       string        `mapstructure:"data_dir" yaml:"data_dir"`
	LogLevel      string        `mapstructure:"log_level" yaml:"log_level"`
	LogFile       string        `mapstructure:"log_file" yaml:"log_file"`

	CreditThreshold  float64 `mapstructure:"credit_threshold" yaml:"credit_threshold"`
	MinutesThreshold int     `mapstructure:"minutes_threshold" yaml:"minutes_threshold"`
	IncludedMinutes  int     `mapstructure:"included_minutes" yaml:"included_minutes"`
}

// Defaults returns the configuration used when no file or env var overrides a key.
func Defaults() *Config {
	return &Config{
		OpenRouterURL:    "https://openrouter.ai/api/v1",
		GitHubAPIURL:     "https://api.github.com",
		PlanningModel:    "google/gemini-2.5-pro-preview-03-25",
		DebugModel:       "openai/o3",
		MaxPasses:        5,
		TestTimeout:      5 * time.Minute,
		EmulatorGrace:    10 * time.Second,
		EditorBin:        "aider",
		DataDir:          ".agitegen",
		LogLevel:         "info",
		CreditThreshold:  0.10,
		MinutesThreshold: 100,
		IncludedMinutes:  2000,
	}
}

// envBindings maps config keys to the environment variables that set them.
// The API key and backend keep their historical unprefixed/short names.
var envBindings = map[string][]string{
	"openrouter_api_key":  {"OPENROUTER_API_KEY", "AGITEGEN_OPENROUTER_API_KEY"},
	"openrouter_base_url": {"AGITEGEN_OPENROUTER_BASE_URL"},
	"github_api_url":      {"AGITEGEN_GITHUB_API_URL"},
	"backend":             {"AGITEGEN_BACKEND"},
	"planning_model":      {"AGITEGEN_PLANNING_MODEL"},
	"debug_model":         {"AGITEGEN_DEBUG_MODEL"},
	"max_passes":          {"AGITEGEN_MAX_PASSES"},
	"test_timeout":        {"AGITEGEN_TEST_TIMEOUT"},
	"emulator_grace":      {"AGITEGEN_EMULATOR_GRACE"},
	"editor_bin":          {"AGITEGEN_EDITOR_BIN"},
	"search_bin":          {"AGITEGEN_SEARCH_BIN"},
	"data_dir":            {"AGITEGEN_DATA_DIR"},
	"log_level":           {"AGITEGEN_LOG_LEVEL"},
	"log_file":            {"AGITEGEN_LOG_FILE"},
	"credit_threshold":    {"AGITEGEN_CREDIT_THRESHOLD"},
	"minutes_threshold":   {"AGITEGEN_MINUTES_THRESHOLD"},
	"included_minutes":    {"AGITEGEN_INCLUDED_MINUTES"},
}

// Load loads configuration with full precedence:
// ENV vars > project config > XDG global config > defaults.
// CLI flags are applied by the commands on top of the result.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigName("agitegen")

	d := Defaults()
	v.SetDefault("openrouter_api_key", "")
	v.SetDefault("openrouter_base_url", d.OpenRouterURL)
	v.SetDefault("github_api_url", d.GitHubAPIURL)
	v.SetDefault("backend", "")
	v.SetDefault("planning_model", d.PlanningModel)
	v.SetDefault("debug_model", d.DebugModel)
	v.SetDefault("max_passes", d.MaxPasses)
	v.SetDefault("test_timeout", d.TestTimeout)
	v.SetDefault("emulator_grace", d.EmulatorGrace)
	v.SetDefault("editor_bin", d.EditorBin)
	v.SetDefault("search_bin", "")
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_file", "")
	v.SetDefault("credit_threshold", d.CreditThreshold)
	v.SetDefault("minutes_threshold", d.MinutesThreshold)
	v.SetDefault("included_minutes", d.IncludedMinutes)

	v.SetEnvPrefix("AGITEGEN")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	for key, envs := range envBindings {
		args := append([]string{key}, envs...)
		if err := v.BindEnv(args...); err != nil {
			return nil, fmt.Errorf("binding %s env: %w", key, err)
		}
	}

	globalPath := GlobalPath()
	if fileExists(globalPath) {
		v.SetConfigFile(globalPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading global config: %w", err)
		}
	}

	projectPath := ProjectPath()
	if fileExists(projectPath) {
		v.SetConfigFile(projectPath)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("merging project config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks values that would otherwise fail deep inside a command.
func (c *Config) Validate() error {
	if c.MaxPasses < 1 {
		return fmt.Errorf("max_passes must be >= 1, got %d", c.MaxPasses)
	}
	if c.TestTimeout <= 0 {
		return fmt.Errorf("test_timeout must be positive, got %s", c.TestTimeout)
	}
	if c.CreditThreshold < 0 || c.CreditThreshold > 1 {
		return fmt.Errorf("credit_threshold must be between 0 and 1, got %v", c.CreditThreshold)
	}
	if c.Backend != "" {
		if _, err := NormalizeBackend(c.Backend); err != nil {
			return err
		}
	}
	return nil
}

// RequireAPIKey returns ErrMissingCredential when the OpenRouter key is unset.
func (c *Config) RequireAPIKey() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return ErrMissingCredential
	}
	return nil
}

// NormalizeBackend lower-cases a backend name and rejects unknown values.
// The empty string maps to BackendNone.
func NormalizeBackend(name string) (string, error) {
	switch b := strings.ToLower(strings.TrimSpace(name)); b {
	case "", BackendNone:
		return BackendNone, nil
	case BackendSupabase, BackendFirebase:
		return b, nil
	default:
		return "", fmt.Errorf("unknown backend %q (use none, supabase or firebase)", name)
	}
}

// EnvOverride is a config key currently set through the environment.
type EnvOverride struct {
	Key string
	Env string
}

// EnvOverrides lists the keys whose value comes from a non-empty
// environment variable, sorted by key. Values are not returned so secrets
// never reach the caller's output.
func EnvOverrides() []EnvOverride {
	var out []EnvOverride
	for key, envs := range envBindings {
		for _, env := range envs {
			if v, ok := os.LookupEnv(env); ok && v != "" {
				out = append(out, EnvOverride{Key: key, Env: env})
				break
			}
		}
	}
	slices.SortFunc(out, func(a, b EnvOverride) int { return strings.Compare(a.Key, b.Key) })
	return out
}

// Exists returns true if any config file exists (global or project).
func Exists() bool {
	return fileExists(GlobalPath()) || fileExists(ProjectPath())
}

// GlobalPath returns the XDG global config path.
// Returns ~/.config/agitegen/agitegen.yml or $XDG_CONFIG_HOME/agitegen/agitegen.yml.
func GlobalPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "agitegen", "agitegen.yml")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "agitegen", "agitegen.yml")
}

// ProjectPath returns the project-local config path.
func ProjectPath() string {
	return "agitegen.yml"
}

// WriteGlobal writes the config to the XDG global location.
func WriteGlobal(cfg *Config) error {
	path := GlobalPath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return write(path, cfg)
}

// WriteProject writes the config to the project-local location.
func WriteProject(cfg *Config) error {
	return write(ProjectPath(), cfg)
}

func write(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
