package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/oshokin/installer-updater/internal/config"
	"github.com/oshokin/installer-updater/internal/logger"
	"github.com/oshokin/installer-updater/internal/service/updater"
)

// errUnknownLogLevel is returned for a log level ParseLogLevel does not know.
var errUnknownLogLevel = errors.New("unknown log level")

// options loads the settings file, applies explicit flags and builds updater options.
func (f *flags) options(cmd *cobra.Command, args []string) (*updater.Options, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	if err = f.apply(cmd, cfg); err != nil {
		return nil, err
	}

	if err = config.Validate(cfg); err != nil {
		return nil, err
	}

	level, ok := logger.ParseLogLevel(cfg.LogLevel)
	if !ok {
		return nil, fmt.Errorf("%q: %w", cfg.LogLevel, errUnknownLogLevel)
	}

	logger.SetLevel(level)

	options := updater.OptionsFromConfig(cfg, args[0], args[1], args[2])
	options.ParentPID = f.parentPID

	return options, nil
}

// apply copies the flags the user actually set over cfg.
func (f *flags) apply(cmd *cobra.Command, cfg *config.Config) error {
	changed := cmd.Flags().Changed

	durations := []struct {
		name  string
		value string
		into  *time.Duration
	}{
		{"quiescence-wait", f.quiescenceWait, &cfg.QuiescenceWait},
		{"parent-wait-timeout", f.parentWaitTimeout, &cfg.ParentWaitTimeout},
		{"settle-delay", f.settleDelay, &cfg.SettleDelay},
		{"readiness-timeout", f.readinessTimeout, &cfg.ReadinessTimeout},
	}

	for _, d := range durations {
		if !changed(d.name) {
			continue
		}

		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("--%s: %w", d.name, err)
		}

		*d.into = parsed
	}

	if changed("min-size") {
		cfg.MinArtifactSize = f.minSize
	}

	if changed("size-mismatch") {
		cfg.SizeMismatch = f.sizeMismatch
	}

	if changed("launch-command") {
		cfg.LaunchCommand = f.launchCommand
	}

	if changed("readiness-address") {
		cfg.ReadinessAddress = f.readinessAddress
	}

	if changed("log-level") {
		cfg.LogLevel = f.logLevel
	}

	return nil
}
