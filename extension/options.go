package extension

import (
	"time"

	streamlock "github.com/blicence/streamlock"
	"github.com/blicence/streamlock/plugin"
	"github.com/blicence/streamlock/store"
	"github.com/blicence/streamlock/treasury"
)

// Option configures the StreamLock Forge extension.
type Option func(*Extension)

// WithStore sets the store for the engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithTreasury sets the custody collaborator for the engine.
func WithTreasury(t treasury.Treasury) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, streamlock.WithTreasury(t))
	}
}

// WithEngineOption passes a streamlock.Option through to the underlying engine.
func WithEngineOption(opt streamlock.Option) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opt)
	}
}

// WithPlugin registers a streamlock plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, streamlock.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithAdmin names the administrative account.
func WithAdmin(account string) Option {
	return func(e *Extension) { e.config.Admin = account }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithMinAmount sets the smallest lock total accepted at creation.
func WithMinAmount(v int64) Option {
	return func(e *Extension) { e.config.MinAmount = v }
}

// WithDurationBounds sets the accepted stream duration range.
func WithDurationBounds(minD, maxD time.Duration) Option {
	return func(e *Extension) {
		e.config.MinDuration = minD
		e.config.MaxDuration = maxD
	}
}
