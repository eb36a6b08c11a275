package config

import (
	"strconv"
	"strings"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigtoml"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// DefaultFile is looked up in the working directory when no --config flag is passed.
const DefaultFile = "strata-tools.toml"

// Config describes all configuration options
type Config struct {
	Project string `toml:"project" default:"strata.pro" usage:"Project configuration file that carries the version number"`
	Log     struct {
		Level string `toml:"level" default:"info"`
		File  string `toml:"file"`
		JSON  bool   `toml:"json" default:"false" usage:"Output JSON instead of pretty console messages"`
	} `toml:"log"`
	Version struct {
		Source  string `toml:"source" default:"auto" usage:"Where to read the version from (auto, project, git, svn)"`
		Default string `toml:"default" default:"0.0.0" usage:"Version reported when no source yields a match"`
		Define  string `toml:"define" default:"STRATA_VERSION" usage:"Macro name used for generated headers"`
	} `toml:"version"`
	Installer struct {
		Recipe   string `toml:"recipe" usage:"Starlark recipe; the built-in recipe is used if empty"`
		Archs    string `toml:"archs" default:"x86,x64" usage:"Comma separated list of architectures to build"`
		FailFast bool   `toml:"fail_fast" default:"false" usage:"Stop at the first failing step"`
	} `toml:"installer"`
	Deps struct {
		File    string `toml:"file" default:"packaging/DEPS.yml"`
		Stamps  string `toml:"stamps" default:"packaging/DEPS.stamps"`
		Retries int    `toml:"retries" default:"3"`
	} `toml:"deps"`
	Images struct {
		Rasterizer string `toml:"rasterizer" default:"pdftoppm" usage:"External PDF rasterizer (pdftoppm, magick or gs)"`
		DPI        int    `toml:"dpi" default:"150"`
		Jobs       int    `toml:"jobs" default:"1"`
		IconSizes  string `toml:"icon_sizes" default:"16,24,32,48,64,128,256"`
	} `toml:"images"`
	Tools struct {
		Required string `toml:"required" default:"git,qmake,mingw32-make,makensis,pdftoppm"`
	} `toml:"tools"`
}

var logLevels = map[string]zerolog.Level{
	"trace":   zerolog.TraceLevel,
	"debug":   zerolog.DebugLevel,
	"info":    zerolog.InfoLevel,
	"warn":    zerolog.WarnLevel,
	"warning": zerolog.WarnLevel,
	"error":   zerolog.ErrorLevel,
	"fatal":   zerolog.FatalLevel,
}

var (
	versionSources = []string{"auto", "project", "git", "svn"}
	rasterizers    = []string{"pdftoppm", "magick", "gs"}
)

// Loader initializes an empty config object and returns a new Loader for this object.
// Flags are handled by cobra, so aconfig only reads defaults, the TOML file and STRATA_* variables.
func Loader(files ...string) (*Config, *aconfig.Loader) {
	if len(files) == 0 {
		files = []string{DefaultFile}
	}

	cfg := Config{}
	return &cfg, aconfig.LoaderFor(&cfg, aconfig.Config{
		SkipFlags: true,
		EnvPrefix: "STRATA",
		Files:     files,
		FileDecoders: map[string]aconfig.FileDecoder{
			".toml": aconfigtoml.New(),
		},
	})
}

// Load is a shortcut for Loader + Load + Validate.
func Load(files ...string) (*Config, error) {
	cfg, loader := Loader(files...)
	if err := loader.Load(); err != nil {
		return nil, eris.Wrap(err, "Failed to load configuration")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate verifies that all config fields have valid values
func (cfg *Config) Validate() error {
	if _, ok := logLevels[cfg.Log.Level]; !ok {
		return eris.Errorf(`Invalid value for log.level: %s`, cfg.Log.Level)
	}

	if !contains(versionSources, cfg.Version.Source) {
		return eris.Errorf(`Invalid value for version.source: %s (must be one of %s)`, cfg.Version.Source, strings.Join(versionSources, ", "))
	}

	if !contains(rasterizers, cfg.Images.Rasterizer) {
		return eris.Errorf(`Invalid value for images.rasterizer: %s (must be one of %s)`, cfg.Images.Rasterizer, strings.Join(rasterizers, ", "))
	}

	if cfg.Images.DPI <= 0 {
		return eris.Errorf(`Invalid value for images.dpi: %d`, cfg.Images.DPI)
	}

	if cfg.Images.Jobs <= 0 {
		return eris.Errorf(`Invalid value for images.jobs: %d`, cfg.Images.Jobs)
	}

	if _, err := cfg.IconSizes(); err != nil {
		return err
	}

	if len(cfg.Archs()) == 0 {
		return eris.New(`installer.archs must name at least one architecture`)
	}

	return nil
}

// LogLevel converts the .Log.Level field to a zerolog.Level
func (cfg *Config) LogLevel() zerolog.Level {
	return logLevels[cfg.Log.Level]
}

// Archs returns the configured installer architectures.
func (cfg *Config) Archs() []string {
	return SplitList(cfg.Installer.Archs)
}

// RequiredTools returns the executables the tools command checks for.
func (cfg *Config) RequiredTools() []string {
	return SplitList(cfg.Tools.Required)
}

// IconSizes parses the comma separated icon size list.
func (cfg *Config) IconSizes() ([]int, error) {
	items := SplitList(cfg.Images.IconSizes)
	sizes := make([]int, 0, len(items))
	for _, item := range items {
		size, err := strconv.Atoi(item)
		if err != nil || size < 1 || size > 256 {
			return nil, eris.Errorf(`Invalid icon size %q in images.icon_sizes (must be 1-256)`, item)
		}
		sizes = append(sizes, size)
	}

	if len(sizes) == 0 {
		return nil, eris.New(`images.icon_sizes is empty`)
	}
	return sizes, nil
}

// SplitList splits a comma separated list and drops empty items.
func SplitList(value string) []string {
	result := make([]string, 0)
	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			result = append(result, item)
		}
	}
	return result
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
