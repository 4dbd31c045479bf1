package domain

// Config mirrors ~/.multiprompt/config.yaml.
type Config struct {
	ConfigFormatVersion string             `yaml:"config_format_version"`
	Preferences         Preferences        `yaml:"preferences"`
	Providers           []ProviderSettings `yaml:"providers"`
	Execution           ExecutionSettings  `yaml:"execution"`
	History             HistorySettings    `yaml:"history"`
	Server              ServerSettings     `yaml:"server"`
}

// Preferences captures user level toggles.
type Preferences struct {
	// DefaultTargets are "provider/model" pairs used when a prompt names none.
	DefaultTargets []string `yaml:"default_targets"`
	Stream         bool     `yaml:"stream"`
	TimeoutSeconds int      `yaml:"timeout"`
}

// ProviderSettings declares one provider in the config file.
type ProviderSettings struct {
	ID         string `yaml:"id"`
	Enabled    bool   `yaml:"enabled"`
	Endpoint   string `yaml:"endpoint,omitempty"`
	AuthEnvVar string `yaml:"auth_env_var,omitempty"`
	OrgEnvVar  string `yaml:"org_env_var,omitempty"`
}

// RequiresKey reports whether the provider expects an API key.
func (p ProviderSettings) RequiresKey() bool {
	return p.AuthEnvVar != ""
}

// ExecutionSettings tunes retry and persistence behavior.
type ExecutionSettings struct {
	RetryAttempts int    `yaml:"retry_attempts"`
	RetryDelay    string `yaml:"retry_delay"`
	Debounce      string `yaml:"debounce"`
}

// HistorySettings configures the durable store.
type HistorySettings struct {
	Database      string `yaml:"database"`
	RetentionDays int    `yaml:"retention_days"`
}

// ServerSettings configures the HTTP API.
type ServerSettings struct {
	Listen string `yaml:"listen"`
}
