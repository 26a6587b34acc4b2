package extension

import "time"

// Config holds the StreamLock extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.streamlock" or "streamlock" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// Admin is the account allowed to call administrative operations.
	Admin string `json:"admin" mapstructure:"admin" yaml:"admin"`

	// MinAmount is the smallest lock total accepted at creation (default: 1).
	MinAmount int64 `json:"min_amount" mapstructure:"min_amount" yaml:"min_amount"`

	// MinDuration is the shortest stream duration accepted at creation
	// (default: 1h).
	MinDuration time.Duration `json:"min_duration" mapstructure:"min_duration" yaml:"min_duration"`

	// MaxDuration is the longest stream duration accepted at creation
	// (default: 8760h).
	MaxDuration time.Duration `json:"max_duration" mapstructure:"max_duration" yaml:"max_duration"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MinAmount:   1,
		MinDuration: time.Hour,
		MaxDuration: 365 * 24 * time.Hour,
	}
}
