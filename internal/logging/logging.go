// ABOUTME: Builds zap loggers for the play commands from a profile and the environment
// ABOUTME: PLAY_LOG_LEVEL, PLAY_LOG_FORMAT and PLAY_LOG_FILE override the profile defaults
package logging

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	EnvLogLevel  = "PLAY_LOG_LEVEL"
	EnvLogFormat = "PLAY_LOG_FORMAT"
	EnvLogFile   = "PLAY_LOG_FILE"
)

type Profile int

const (
	// ProfileRuntime logs at info with production encoding
	ProfileRuntime Profile = iota
	// ProfileTest logs everything with development encoding
	ProfileTest
)

// Options choose where log lines go. With neither set the logger discards everything.
type Options struct {
	File    string
	Console bool
}

// New builds a logger for profile
func New(profile Profile, opts Options) (*zap.Logger, error) {
	cfg := defaultConfig(profile)
	if err := applyEnvOverrides(&cfg, &opts); err != nil {
		return nil, err
	}

	paths := outputPaths(opts)
	if len(paths) == 0 {
		return zap.NewNop(), nil
	}
	cfg.OutputPaths = paths
	cfg.ErrorOutputPaths = paths

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}

func defaultConfig(profile Profile) zap.Config {
	switch profile {
	case ProfileTest:
		cfg := zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		return cfg
	default:
		cfg := zap.NewProductionConfig()
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.Sampling = nil
		return cfg
	}
}

func applyEnvOverrides(cfg *zap.Config, opts *Options) error {
	if raw := strings.TrimSpace(os.Getenv(EnvLogLevel)); raw != "" {
		lvl, err := zapcore.ParseLevel(strings.ToLower(raw))
		if err != nil {
			return fmt.Errorf("%s: %w", EnvLogLevel, err)
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}

	switch format := strings.ToLower(strings.TrimSpace(os.Getenv(EnvLogFormat))); format {
	case "":
	case "json", "console":
		cfg.Encoding = format
	default:
		return fmt.Errorf("%s: unknown format %q", EnvLogFormat, format)
	}

	if file := strings.TrimSpace(os.Getenv(EnvLogFile)); file != "" {
		opts.File = file
	}
	return nil
}

func outputPaths(opts Options) []string {
	var paths []string
	if opts.Console {
		paths = append(paths, "stderr")
	}
	if opts.File != "" {
		paths = append(paths, opts.File)
	}
	return paths
}
