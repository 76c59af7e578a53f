package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config holds all runtime configuration. Values come from the TOML
// config file, overridden by environment variables.
type Config struct {
	// Server
	Port     int    `toml:"port"`
	LogLevel string `toml:"log_level"`

	// Paths
	SaveDir    string `toml:"save_dir"`    // where saved recordings land
	ScratchDir string `toml:"scratch_dir"` // cache for unsaved recordings
	LibraryDB  string `toml:"library_db"`  // favorites/history database

	// Recording behavior
	RecordingEnabled bool    `toml:"recording_enabled"`
	PreBufferSec     float64 `toml:"pre_buffer_seconds"`
	PostBufferSec    float64 `toml:"post_buffer_seconds"`
	MinRecordingSec  int     `toml:"min_recording_seconds"`
	MaxRecordingSec  int     `toml:"max_recording_seconds"`
	GraceSec         int     `toml:"grace_seconds"`
	MaxCached        int     `toml:"max_cached_recordings"`
	AnalysisEnabled  bool    `toml:"analysis_enabled"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	home, _ := os.UserHomeDir()
	return Config{
		Port:     8080,
		LogLevel: "info",

		SaveDir:    filepath.Join(home, "Music", "tunetap"),
		ScratchDir: filepath.Join(os.TempDir(), "tunetap"),
		LibraryDB:  filepath.Join(home, ".config", "tunetap", "library.db"),

		RecordingEnabled: true,
		PreBufferSec:     8,
		PostBufferSec:    3,
		MinRecordingSec:  30,
		MaxRecordingSec:  600,
		GraceSec:         5,
		MaxCached:        20,
		AnalysisEnabled:  true,
	}
}

// Load reads path (missing file is fine, defaults apply), then applies
// environment overrides.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			// no config file, run on defaults
		case err != nil:
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := toml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	cfg.Port = envInt("TUNETAP_PORT", cfg.Port)
	cfg.LogLevel = envStr("TUNETAP_LOG_LEVEL", cfg.LogLevel)
	cfg.SaveDir = envStr("TUNETAP_SAVE_DIR", cfg.SaveDir)
	cfg.ScratchDir = envStr("TUNETAP_SCRATCH_DIR", cfg.ScratchDir)
	cfg.LibraryDB = envStr("TUNETAP_LIBRARY_DB", cfg.LibraryDB)
	cfg.RecordingEnabled = envBool("TUNETAP_RECORDING", cfg.RecordingEnabled)
	cfg.PreBufferSec = envFloat("TUNETAP_PRE_BUFFER", cfg.PreBufferSec)
	cfg.PostBufferSec = envFloat("TUNETAP_POST_BUFFER", cfg.PostBufferSec)
	cfg.MinRecordingSec = envInt("TUNETAP_MIN_RECORDING", cfg.MinRecordingSec)
	cfg.MaxRecordingSec = envInt("TUNETAP_MAX_RECORDING", cfg.MaxRecordingSec)
	cfg.GraceSec = envInt("TUNETAP_GRACE", cfg.GraceSec)
	cfg.MaxCached = envInt("TUNETAP_MAX_CACHED", cfg.MaxCached)
	cfg.AnalysisEnabled = envBool("TUNETAP_ANALYSIS", cfg.AnalysisEnabled)

	return cfg, nil
}

// MinRecording returns the minimum capture length as a duration.
func (c Config) MinRecording() time.Duration {
	return time.Duration(c.MinRecordingSec) * time.Second
}

// MaxRecording returns the maximum capture length as a duration.
func (c Config) MaxRecording() time.Duration {
	return time.Duration(c.MaxRecordingSec) * time.Second
}

// Grace returns the metadata correction window as a duration.
func (c Config) Grace() time.Duration {
	return time.Duration(c.GraceSec) * time.Second
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
