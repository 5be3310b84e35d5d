package hooks

// Config is the top-level configuration loaded from .agitegen.hooks.yml.
type Config struct {
	Version int         `yaml:"version"`
	Hooks   HooksConfig `yaml:"hooks"`
}

// HooksConfig lists the hooks run around each convergence pass.
type HooksConfig struct {
	PrePass  []*HookConfig `yaml:"pre_pass"`
	PostPass []*HookConfig `yaml:"post_pass"`
}

// HookConfig defines a single hook's configuration.
type HookConfig struct {
	Command    string `yaml:"command"`
	Timeout    int    `yaml:"timeout"`     // seconds, default 30
	PipeOutput bool   `yaml:"pipe_output"` // add output to the editor payload
}

// DefaultTimeout is the default timeout for hook execution in seconds.
const DefaultTimeout = 30
