// Package config loads duet.toml.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"duet/internal/audio"
	"duet/internal/core/clock"
	"duet/internal/core/model"
	"duet/internal/platform"
)

const (
	AppName     = "duet"
	FileName    = "duet.toml"
	DefaultMode = "classic"
)

// Config is the resolved application configuration.
type Config struct {
	TickInterval time.Duration
	DefaultMode  string
	// GuidanceLevel overrides the level of every mode when set.
	GuidanceLevel *model.GuidanceLevel
	DataDir       string
	LogLevel      slog.Level
	Audio         Audio
}

// Audio configures cue playback.
type Audio struct {
	Enabled   bool
	Bell      bool
	QueueSize int
}

type fileConfig struct {
	TickInterval  string    `toml:"tick-interval"`
	DefaultMode   string    `toml:"default-mode"`
	GuidanceLevel string    `toml:"guidance-level"`
	DataDir       string    `toml:"data-dir"`
	LogLevel      string    `toml:"log-level"`
	Audio         fileAudio `toml:"audio"`
}

type fileAudio struct {
	Enabled   bool `toml:"enabled"`
	Bell      bool `toml:"bell"`
	QueueSize int  `toml:"queue-size"`
}

// Default returns the configuration used when no file is present.
func Default() (Config, error) {
	dataDir, err := platform.ConfigDir(AppName)
	if err != nil {
		return Config{}, err
	}
	return Config{
		TickInterval: clock.DefaultInterval,
		DefaultMode:  DefaultMode,
		DataDir:      dataDir,
		LogLevel:     slog.LevelInfo,
		Audio: Audio{
			Enabled:   true,
			QueueSize: audio.DefaultQueueSize,
		},
	}, nil
}

// DefaultPath returns the location of the user's config file.
func DefaultPath() (string, error) {
	dir, err := platform.ConfigDir(AppName)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName), nil
}

// Load reads the config file at path, or the default location when path is
// empty. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg, err := Default()
	if err != nil {
		return Config{}, err
	}
	if path == "" {
		if path, err = DefaultPath(); err != nil {
			return Config{}, err
		}
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config file %s: %w", path, err)
	}
	return Parse(cfg, string(data))
}

// Parse applies the keys defined in a TOML document on top of base.
func Parse(base Config, data string) (Config, error) {
	var fileData fileConfig
	meta, err := toml.Decode(data, &fileData)
	if err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return Config{}, fmt.Errorf("parse config: unknown keys %s", strings.Join(keys, ", "))
	}

	cfg := base
	if meta.IsDefined("tick-interval") {
		interval, err := time.ParseDuration(fileData.TickInterval)
		if err != nil {
			return Config{}, fmt.Errorf("parse config: tick-interval: %w", err)
		}
		if interval < clock.MinInterval {
			return Config{}, fmt.Errorf("parse config: tick-interval %s is below %s", interval, clock.MinInterval)
		}
		cfg.TickInterval = interval
	}
	if meta.IsDefined("default-mode") {
		cfg.DefaultMode = strings.TrimSpace(fileData.DefaultMode)
		if cfg.DefaultMode == "" {
			return Config{}, errors.New("parse config: default-mode is empty")
		}
	}
	if meta.IsDefined("guidance-level") {
		level, err := model.ParseGuidanceLevel(fileData.GuidanceLevel)
		if err != nil {
			return Config{}, fmt.Errorf("parse config: guidance-level: %w", err)
		}
		cfg.GuidanceLevel = &level
	}
	if meta.IsDefined("data-dir") {
		dir, err := expandHome(strings.TrimSpace(fileData.DataDir))
		if err != nil {
			return Config{}, fmt.Errorf("parse config: data-dir: %w", err)
		}
		cfg.DataDir = dir
	}
	if meta.IsDefined("log-level") {
		if err := cfg.LogLevel.UnmarshalText([]byte(fileData.LogLevel)); err != nil {
			return Config{}, fmt.Errorf("parse config: log-level: %w", err)
		}
	}
	if meta.IsDefined("audio", "enabled") {
		cfg.Audio.Enabled = fileData.Audio.Enabled
	}
	if meta.IsDefined("audio", "bell") {
		cfg.Audio.Bell = fileData.Audio.Bell
	}
	if meta.IsDefined("audio", "queue-size") {
		if fileData.Audio.QueueSize <= 0 {
			return Config{}, fmt.Errorf("parse config: audio.queue-size must be positive, got %d", fileData.Audio.QueueSize)
		}
		cfg.Audio.QueueSize = fileData.Audio.QueueSize
	}
	return cfg, nil
}

// ApplyGuidance returns mode with the configured guidance override applied.
func (cfg Config) ApplyGuidance(mode model.PhaseSequence) model.PhaseSequence {
	if cfg.GuidanceLevel != nil {
		mode.GuidanceLevel = *cfg.GuidanceLevel
	}
	return mode
}

func expandHome(path string) (string, error) {
	if path == "" {
		return "", errors.New("empty path")
	}
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
