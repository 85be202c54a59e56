package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Size mismatch policies applied after the artifact is installed.
const (
	// SizeMismatchWarn logs a mismatch and carries on.
	SizeMismatchWarn = "warn"
	// SizeMismatchFail treats a mismatch as a failed verification and rolls back.
	SizeMismatchFail = "fail"
)

const (
	// DefaultConfigFilename is looked up in the working directory when no path is given.
	DefaultConfigFilename = "installer-updater.yaml"

	// DefaultQuiescenceWait is the fixed pause used when the parent PID is unknown.
	DefaultQuiescenceWait = 5 * time.Second

	// DefaultParentWaitTimeout bounds the wait for a known parent process to exit.
	DefaultParentWaitTimeout = 30 * time.Second

	// DefaultSettleDelay is the pause after the relaunch before the backup is removed.
	DefaultSettleDelay = 2 * time.Second

	// DefaultReadinessTimeout bounds the readiness probe of the relaunched artifact.
	DefaultReadinessTimeout = 10 * time.Second

	// DefaultMinArtifactSize is the smallest artifact accepted, in bytes.
	DefaultMinArtifactSize int64 = 100_000

	// DefaultFilePermissions is used when writing the settings file.
	DefaultFilePermissions = 0o600
)

// Config holds tunables of the update executor.
type Config struct {
	// QuiescenceWait is slept before touching the target when no parent PID is known.
	QuiescenceWait time.Duration `yaml:"quiescence_wait"`
	// ParentWaitTimeout bounds the wait for the parent installer to exit.
	ParentWaitTimeout time.Duration `yaml:"parent_wait_timeout"`
	// SettleDelay is slept after the relaunch when no readiness probe is configured.
	SettleDelay time.Duration `yaml:"settle_delay"`
	// MinArtifactSize rejects suspiciously small artifacts.
	MinArtifactSize int64 `yaml:"min_artifact_size"`
	// SizeMismatch is either "warn" or "fail".
	SizeMismatch string `yaml:"size_mismatch"`
	// LaunchCommand is prepended to the target path when relaunching, e.g. [java, -jar].
	LaunchCommand []string `yaml:"launch_command,omitempty"`
	// ReadinessAddress is a gRPC address exposing the standard health service.
	ReadinessAddress string `yaml:"readiness_address,omitempty"`
	// ReadinessTimeout bounds the readiness probe.
	ReadinessTimeout time.Duration `yaml:"readiness_timeout"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errNegativeDuration is returned for durations below zero.
	errNegativeDuration = errors.New("duration must not be negative")
	// errBadSizeMismatch is returned for an unknown size mismatch policy.
	errBadSizeMismatch = errors.New("size mismatch policy must be warn or fail")
	// errBadMinArtifactSize is returned for a negative size threshold.
	errBadMinArtifactSize = errors.New("minimum artifact size must not be negative")
)

// Default returns settings matching the historical updater behaviour.
func Default() *Config {
	return &Config{
		QuiescenceWait:    DefaultQuiescenceWait,
		ParentWaitTimeout: DefaultParentWaitTimeout,
		SettleDelay:       DefaultSettleDelay,
		MinArtifactSize:   DefaultMinArtifactSize,
		SizeMismatch:      SizeMismatchWarn,
		ReadinessTimeout:  DefaultReadinessTimeout,
		LogLevel:          "info",
	}
}

// Load reads settings from path.
// An empty path loads DefaultConfigFilename if present and built-in defaults otherwise.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}

		return nil, fmt.Errorf("read settings: %w", err)
	}

	cfg := Default()
	if err = yaml.Unmarshal(contents, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err = Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes cfg to path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if err = os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate rejects invalid values and fills defaults for unset ones.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	durations := map[string]time.Duration{
		"quiescence_wait":     cfg.QuiescenceWait,
		"parent_wait_timeout": cfg.ParentWaitTimeout,
		"settle_delay":        cfg.SettleDelay,
		"readiness_timeout":   cfg.ReadinessTimeout,
	}
	for name, d := range durations {
		if d < 0 {
			return fmt.Errorf("%s %s: %w", name, d, errNegativeDuration)
		}
	}

	if cfg.MinArtifactSize < 0 {
		return errBadMinArtifactSize
	}

	cfg.SizeMismatch = strings.ToLower(strings.TrimSpace(cfg.SizeMismatch))
	switch cfg.SizeMismatch {
	case "":
		cfg.SizeMismatch = SizeMismatchWarn
	case SizeMismatchWarn, SizeMismatchFail:
	default:
		return fmt.Errorf("%q: %w", cfg.SizeMismatch, errBadSizeMismatch)
	}

	// Zero means "not configured" for the timeouts; waiting forever is never intended.
	if cfg.ParentWaitTimeout == 0 {
		cfg.ParentWaitTimeout = DefaultParentWaitTimeout
	}

	if cfg.ReadinessTimeout == 0 {
		cfg.ReadinessTimeout = DefaultReadinessTimeout
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	return nil
}
