package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)

	assert.Equal(t, "strata.pro", cfg.Project)
	assert.Equal(t, "auto", cfg.Version.Source)
	assert.Equal(t, "0.0.0", cfg.Version.Default)
	assert.Equal(t, []string{"x86", "x64"}, cfg.Archs())
	assert.Equal(t, zerolog.InfoLevel, cfg.LogLevel())
	assert.Equal(t, 150, cfg.Images.DPI)

	sizes, err := cfg.IconSizes()
	require.NoError(t, err)
	assert.Equal(t, []int{16, 24, 32, 48, 64, 128, 256}, sizes)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strata-tools.toml")
	content := `project = "CMakeLists.txt"

[log]
level = "debug"

[images]
dpi = 300
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "CMakeLists.txt", cfg.Project)
	assert.Equal(t, zerolog.DebugLevel, cfg.LogLevel())
	assert.Equal(t, 300, cfg.Images.DPI)
	assert.Equal(t, "pdftoppm", cfg.Images.Rasterizer)
}

func validConfig(t *testing.T) *Config {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	return cfg
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"version source", func(c *Config) { c.Version.Source = "cvs" }, "version.source"},
		{"rasterizer", func(c *Config) { c.Images.Rasterizer = "acrobat" }, "images.rasterizer"},
		{"dpi", func(c *Config) { c.Images.DPI = 0 }, "images.dpi"},
		{"icon size", func(c *Config) { c.Images.IconSizes = "16,512" }, "icon size"},
		{"archs", func(c *Config) { c.Installer.Archs = " , " }, "installer.archs"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, SplitList(" a, ,b ,"))
	assert.Empty(t, SplitList(""))
}
