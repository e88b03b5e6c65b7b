// Package commands implements the userprofile CLI.
package commands

import (
	"fmt"

	"github.com/systmms/userprofile/internal/app"
	"github.com/systmms/userprofile/internal/config"
	"github.com/systmms/userprofile/internal/logging"
)

// Runtime is shared by every command: the global flags, and the settings and
// services built from them on first use.
type Runtime struct {
	ConfigPath string
	Debug      bool

	// Settings skips loading when set.
	Settings *config.Settings
	// Options are applied after the defaults when services are built.
	Options []app.Option

	services *app.Services
}

// LoadSettings resolves settings from the config file and environment.
func (rt *Runtime) LoadSettings() (*config.Settings, error) {
	if rt.Settings != nil {
		return rt.Settings, nil
	}
	settings, err := config.Load(rt.ConfigPath)
	if err != nil {
		return nil, err
	}
	rt.Settings = settings
	return settings, nil
}

// Services builds the process context once.
func (rt *Runtime) Services() (*app.Services, error) {
	if rt.services != nil {
		return rt.services, nil
	}

	settings, err := rt.LoadSettings()
	if err != nil {
		return nil, err
	}
	logger, err := logging.FromSettings(&settings.Logger, rt.Debug)
	if err != nil {
		return nil, fmt.Errorf("failed to configure logging: %w", err)
	}

	opts := append([]app.Option{app.WithLogger(logger)}, rt.Options...)
	rt.services = app.New(settings, opts...)
	return rt.services, nil
}
