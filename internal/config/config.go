package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config represents the complete cme configuration (v1 schema)
type Config struct {
	Version       int    `json:"version" mapstructure:"version"`
	WorkspaceRoot string `json:"workspaceRoot" mapstructure:"workspaceRoot"`

	Editor  EditorConfig  `json:"editor" mapstructure:"editor"`
	Jobs    JobsConfig    `json:"jobs" mapstructure:"jobs"`
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
}

// EditorConfig contains mutation pipeline configuration
type EditorConfig struct {
	// HealerURL is the local inference endpoint used to repair broken
	// candidates. Empty disables healing entirely.
	HealerURL        string `json:"healerUrl" mapstructure:"healerUrl"`
	HealerTimeoutMs  int    `json:"healerTimeoutMs" mapstructure:"healerTimeoutMs"`
	HealerModel      string `json:"healerModel" mapstructure:"healerModel"`
	MaxFileSizeBytes int    `json:"maxFileSizeBytes" mapstructure:"maxFileSizeBytes"`
	// FallbackEnabled allows keyword/brace matching on files whose language
	// has no registered grammar. Edits through that path report reduced
	// confidence.
	FallbackEnabled bool `json:"fallbackEnabled" mapstructure:"fallbackEnabled"`
}

// JobsConfig contains background job execution configuration
type JobsConfig struct {
	MaxConcurrent        int    `json:"maxConcurrent" mapstructure:"maxConcurrent"`
	QueueSize            int    `json:"queueSize" mapstructure:"queueSize"`
	DefaultTimeoutSecs   int    `json:"defaultTimeoutSecs" mapstructure:"defaultTimeoutSecs"`
	MaxTimeoutSecs       int    `json:"maxTimeoutSecs" mapstructure:"maxTimeoutSecs"`
	LogTailLines         int    `json:"logTailLines" mapstructure:"logTailLines"`
	RetentionHours       int    `json:"retentionHours" mapstructure:"retentionHours"`
	MaxCompleted         int    `json:"maxCompleted" mapstructure:"maxCompleted"`
	ArchiveLogs          bool   `json:"archiveLogs" mapstructure:"archiveLogs"`
	ArchiveRetentionDays int    `json:"archiveRetentionDays" mapstructure:"archiveRetentionDays"`
	Notifications        bool   `json:"notifications" mapstructure:"notifications"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Format string `json:"format" mapstructure:"format"`
	Level  string `json:"level" mapstructure:"level"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Version:       1,
		WorkspaceRoot: ".",
		Editor: EditorConfig{
			HealerURL:        "",
			HealerTimeoutMs:  10000,
			HealerModel:      "",
			MaxFileSizeBytes: 1000000,
			FallbackEnabled:  true,
		},
		Jobs: JobsConfig{
			MaxConcurrent:        4,
			QueueSize:            64,
			DefaultTimeoutSecs:   300,
			MaxTimeoutSecs:       3600,
			LogTailLines:         20,
			RetentionHours:       24,
			MaxCompleted:         256,
			ArchiveLogs:          true,
			ArchiveRetentionDays: 7,
			Notifications:        true,
		},
		Logging: LoggingConfig{
			Format: "human",
			Level:  "info",
		},
	}
}

// LoadConfig loads configuration from .cme/config.json
func LoadConfig(workspaceRoot string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("version", 1)
	v.SetDefault("workspaceRoot", ".")

	// Configure viper
	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(filepath.Join(workspaceRoot, ".cme"))

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		// If config doesn't exist, return default config
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	// Unmarshal over the defaults so partial files stay usable
	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to .cme/config.json
func (c *Config) Save(workspaceRoot string) error {
	configPath := filepath.Join(workspaceRoot, ".cme", "config.json")

	// Marshal to JSON with indentation
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	// Write to file
	return os.WriteFile(configPath, data, 0644)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Version != 1 {
		return &ConfigError{Field: "version", Message: "unsupported config version"}
	}
	if c.Editor.HealerTimeoutMs <= 0 {
		return &ConfigError{Field: "editor.healerTimeoutMs", Message: "must be positive"}
	}
	if c.Editor.MaxFileSizeBytes <= 0 {
		return &ConfigError{Field: "editor.maxFileSizeBytes", Message: "must be positive"}
	}
	if c.Jobs.MaxConcurrent < 1 {
		return &ConfigError{Field: "jobs.maxConcurrent", Message: "need at least one worker"}
	}
	if c.Jobs.QueueSize < 1 {
		return &ConfigError{Field: "jobs.queueSize", Message: "need at least one queue slot"}
	}
	if c.Jobs.DefaultTimeoutSecs <= 0 || c.Jobs.DefaultTimeoutSecs > c.Jobs.MaxTimeoutSecs {
		return &ConfigError{Field: "jobs.defaultTimeoutSecs", Message: "must be positive and within maxTimeoutSecs"}
	}
	if c.Jobs.LogTailLines < 1 {
		return &ConfigError{Field: "jobs.logTailLines", Message: "must be positive"}
	}
	if c.Jobs.RetentionHours < 1 {
		return &ConfigError{Field: "jobs.retentionHours", Message: "must be positive"}
	}

	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
