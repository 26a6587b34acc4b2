// Package extension provides the Forge extension adapter for StreamLock.
//
// It implements the forge.Extension interface to integrate StreamLock
// into a Forge application with automatic dependency discovery,
// DI registration, and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.streamlock" or
// "streamlock" keys.
package extension

import (
	"context"
	"errors"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	streamlock "github.com/blicence/streamlock"
	"github.com/blicence/streamlock/lock"
	"github.com/blicence/streamlock/store"
	"github.com/blicence/streamlock/store/memory"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "streamlock"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Time- and usage-based value-release lock engine"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts StreamLock as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *streamlock.Manager
	store      store.Store
	engineOpts []streamlock.Option
}

// New creates a new StreamLock Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying Manager instance.
// This is nil until Register is called.
func (e *Extension) Engine() *streamlock.Manager { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// initializes the engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	// Use memory store if no store was provided programmatically.
	if e.store == nil {
		e.store = memory.New()
	}

	// Build engine options from resolved config.
	opts := e.buildEngineOpts()

	e.engine = streamlock.New(e.store, opts...)

	return vessel.Provide(fapp.Container(), func() (*streamlock.Manager, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("streamlock: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.engine.Start(ctx); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("streamlock: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildEngineOpts constructs streamlock.Option values from the resolved config.
func (e *Extension) buildEngineOpts() []streamlock.Option {
	opts := make([]streamlock.Option, 0, len(e.engineOpts)+2)

	if e.config.Admin != "" {
		opts = append(opts, streamlock.WithAdmin(e.config.Admin))
	}

	opts = append(opts, streamlock.WithStreamParams(lock.Params{
		MinAmount:   e.config.MinAmount,
		MinDuration: e.config.MinDuration,
		MaxDuration: e.config.MaxDuration,
	}))

	// Append any pass-through engine options.
	opts = append(opts, e.engineOpts...)

	return opts
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("streamlock: configuration is required but not found in config files; " +
				"ensure 'extensions.streamlock' or 'streamlock' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = e.mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = e.mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("streamlock: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("admin", e.config.Admin),
		forge.F("min_amount", e.config.MinAmount),
		forge.F("min_duration", e.config.MinDuration),
		forge.F("max_duration", e.config.MaxDuration),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	// Try "extensions.streamlock" first (namespaced pattern).
	if cm.IsSet("extensions.streamlock") {
		if err := cm.Bind("extensions.streamlock", &cfg); err == nil {
			e.Logger().Debug("streamlock: loaded config from file",
				forge.F("key", "extensions.streamlock"),
			)
			return cfg, true
		}
		e.Logger().Warn("streamlock: failed to bind extensions.streamlock config",
			forge.F("error", "bind failed"),
		)
	}

	// Try legacy "streamlock" key.
	if cm.IsSet("streamlock") {
		if err := cm.Bind("streamlock", &cfg); err == nil {
			e.Logger().Debug("streamlock: loaded config from file",
				forge.F("key", "streamlock"),
			)
			return cfg, true
		}
		e.Logger().Warn("streamlock: failed to bind streamlock config",
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func (e *Extension) mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.MinAmount == 0 {
		cfg.MinAmount = defaults.MinAmount
	}
	if cfg.MinDuration == 0 {
		cfg.MinDuration = defaults.MinDuration
	}
	if cfg.MaxDuration == 0 {
		cfg.MaxDuration = defaults.MaxDuration
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic flags fill gaps.
func (e *Extension) mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}

	// String fields: YAML takes precedence.
	if yamlConfig.Admin == "" && programmaticConfig.Admin != "" {
		yamlConfig.Admin = programmaticConfig.Admin
	}

	// Numeric fields: YAML takes precedence, programmatic fills gaps.
	if yamlConfig.MinAmount == 0 && programmaticConfig.MinAmount != 0 {
		yamlConfig.MinAmount = programmaticConfig.MinAmount
	}
	if yamlConfig.MinDuration == 0 && programmaticConfig.MinDuration != 0 {
		yamlConfig.MinDuration = programmaticConfig.MinDuration
	}
	if yamlConfig.MaxDuration == 0 && programmaticConfig.MaxDuration != 0 {
		yamlConfig.MaxDuration = programmaticConfig.MaxDuration
	}

	// Fill remaining zeros with defaults.
	return e.mergeWithDefaults(yamlConfig)
}
