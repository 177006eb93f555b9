// Package config loads the daemon configuration file: TOML, one key per
// line, # comments.
package config

import (
	"fmt"
	"path/filepath"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Volume limits in whole decibels; 0 dB is unity gain.
const (
	MinVolumeDb     = -60
	MaxVolumeDb     = 0
	defaultVolumeDb = -10
)

type Config struct {
	// Listen is the host:port the HTTP API binds to.
	Listen string `koanf:"listen"`
	// LibraryPath is the absolute path of the FLAC collection root.
	LibraryPath string `koanf:"library_path"`
	// CoversPath is the absolute path of the thumbnail cache directory.
	CoversPath string `koanf:"covers_path"`
	// DbPath locates the sqlite companion database. Defaults to
	// musium.sqlite3 inside CoversPath.
	DbPath string `koanf:"db_path"`
	// AudioDevice is the configured ALSA output name. The oto backend plays
	// through the system's ALSA configuration and does not select a device
	// by name; the name only appears in device error messages.
	AudioDevice string `koanf:"audio_device"`
	// VolumeDb is the software volume at startup, in whole decibels.
	VolumeDb int `koanf:"volume_db"`
}

// Load reads and validates the configuration at path. Any missing required
// key is an error; the daemon aborts rather than guessing.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	cfg := &Config{
		AudioDevice: "default",
		VolumeDb:    defaultVolumeDb,
	}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	for _, req := range []struct{ key, value string }{
		{"listen", cfg.Listen},
		{"library_path", cfg.LibraryPath},
		{"covers_path", cfg.CoversPath},
	} {
		if req.value == "" {
			return nil, fmt.Errorf("config %s: missing key %q", path, req.key)
		}
	}
	if cfg.DbPath == "" {
		cfg.DbPath = filepath.Join(cfg.CoversPath, "musium.sqlite3")
	}
	if cfg.VolumeDb < MinVolumeDb || cfg.VolumeDb > MaxVolumeDb {
		return nil, fmt.Errorf("config %s: volume_db %d outside [%d, %d]",
			path, cfg.VolumeDb, MinVolumeDb, MaxVolumeDb)
	}
	return cfg, nil
}
