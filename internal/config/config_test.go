package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "musium.conf")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const fullConfig = `
# Musium daemon configuration.
listen = "0.0.0.0:8233"
library_path = "/srv/music"
covers_path = "/var/cache/musium/covers"
audio_device = "hw:0"
volume_db = -20
`

func TestLoadFull(t *testing.T) {
	cfg, err := Load(writeConfig(t, fullConfig))
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:8233", cfg.Listen)
	assert.Equal(t, "/srv/music", cfg.LibraryPath)
	assert.Equal(t, "/var/cache/musium/covers", cfg.CoversPath)
	assert.Equal(t, "hw:0", cfg.AudioDevice)
	assert.Equal(t, -20, cfg.VolumeDb)
	// Derived default lives next to the covers.
	assert.Equal(t, filepath.Join("/var/cache/musium/covers", "musium.sqlite3"), cfg.DbPath)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
listen = "localhost:8233"
library_path = "/srv/music"
covers_path = "/covers"
`))
	require.NoError(t, err)
	assert.Equal(t, "default", cfg.AudioDevice)
	assert.Equal(t, defaultVolumeDb, cfg.VolumeDb)
}

func TestLoadMissingKeys(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"no listen", `library_path = "/m"` + "\n" + `covers_path = "/c"`},
		{"no library", `listen = "x:1"` + "\n" + `covers_path = "/c"`},
		{"no covers", `listen = "x:1"` + "\n" + `library_path = "/m"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.ErrorContains(t, err, "missing key")
		})
	}
}

func TestLoadVolumeOutOfRange(t *testing.T) {
	_, err := Load(writeConfig(t, `
listen = "localhost:8233"
library_path = "/srv/music"
covers_path = "/covers"
volume_db = -100
`))
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.conf"))
	assert.Error(t, err)
}

func TestLoadMalformedFile(t *testing.T) {
	_, err := Load(writeConfig(t, "listen = \"unterminated"))
	assert.Error(t, err)
}
