package cli

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/dshills/hearth/internal/component"
	"github.com/dshills/hearth/internal/config"
	"github.com/dshills/hearth/internal/integration"
)

// Runtime bundles the loaded configuration with the integration registry and
// component host. Each command builds one, uses it, and closes it.
type Runtime struct {
	Config   config.Config
	Logger   *zap.Logger
	Host     *component.Host
	Registry *integration.Registry
}

// newRuntime loads configuration and constructs the registry.
func newRuntime(opts *RootOptions) (*Runtime, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv()

	if opts.Verbose {
		cfg.Logging.Level = "debug"
	}
	if opts.SafeMode {
		cfg.SafeMode = true
	}

	logger, err := cfg.BuildLogger()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}

	host := component.NewHost(logger)
	reg := integration.NewRegistry(integration.RegistryConfig{
		Logger:       logger,
		BuiltinRoots: cfg.Paths.Builtin,
		CustomRoots:  cfg.Paths.Custom,
		Host:         host,
		SafeMode:     cfg.SafeMode,
	})

	return &Runtime{
		Config:   cfg,
		Logger:   logger,
		Host:     host,
		Registry: reg,
	}, nil
}

// Close releases the runtime's resources.
func (rt *Runtime) Close() {
	rt.Host.Close()
	_ = rt.Logger.Sync()
}
