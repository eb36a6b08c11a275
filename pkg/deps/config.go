// Package deps downloads and unpacks the toolchain and library archives a Windows build needs.
package deps

import (
	"encoding/json"
	"os"
	"regexp"
	"runtime"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Spec describes a single archive from DEPS.yml.
type Spec struct {
	Condition  string `yaml:"if,omitempty"`
	Rejections string `yaml:"ifNot,omitempty"`
	URL        string
	Dest       string
	Sha256     string
	Strip      int
	MarkExec   []string `yaml:"markExec,omitempty"`
}

// Config is the content of DEPS.yml.
type Config struct {
	Vars map[string]string
	Deps map[string]Spec

	// raw keeps the original file so that checksum updates can preserve formatting and comments
	raw string
}

// Stamps maps dependency names to the URL and checksum of the installed archive.
type Stamps map[string]string

// LoadConfig reads and parses a DEPS.yml file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "Could not open file %s.", path)
	}

	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, eris.Wrapf(err, "Failed to parse %s.", path)
	}
	return cfg, nil
}

// ParseConfig parses the content of a DEPS.yml file.
func ParseConfig(data []byte) (*Config, error) {
	cfg := &Config{}
	err := yaml.Unmarshal(data, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "invalid YAML")
	}

	if cfg.Vars == nil {
		cfg.Vars = map[string]string{}
	}
	cfg.raw = string(data)
	return cfg, nil
}

// Names returns the dependency names in a stable order.
func (c *Config) Names() []string {
	names := make([]string, 0, len(c.Deps))
	for name := range c.Deps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultVars returns the condition variables describing the current machine merged with the
// variables declared in the config and the given extras.
func (c *Config) DefaultVars(extra map[string]string) map[string]string {
	vars := make(map[string]string, len(c.Vars)+len(extra)+4)
	for k, v := range c.Vars {
		vars[k] = v
	}

	vars["os"] = runtime.GOOS
	vars["arch"] = runtime.GOARCH
	vars[runtime.GOARCH] = "true"
	vars[runtime.GOOS] = "true"
	if os.Getenv("CI") == "true" {
		vars["ci"] = "true"
	}

	for k, v := range extra {
		vars[k] = v
	}
	return vars
}

var varMatcher = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

// EvalConditions expands the {VAR} placeholders in the URL and reports whether the dependency
// applies: every "if" variable has to be set and every "ifNot" variable has to be empty.
func EvalConditions(meta *Spec, vars map[string]string) bool {
	meta.URL = varMatcher.ReplaceAllStringFunc(meta.URL, func(varName string) string {
		return vars[varName[1:len(varName)-1]]
	})

	for _, condition := range strings.Split(meta.Condition, ",") {
		condition = strings.TrimSpace(condition)
		if condition == "" {
			continue
		}

		if vars[condition] == "" {
			return false
		}
	}

	for _, condition := range strings.Split(meta.Rejections, ",") {
		condition = strings.TrimSpace(condition)
		if condition == "" {
			continue
		}

		if vars[condition] != "" {
			return false
		}
	}
	return true
}

func stampToken(meta Spec) string {
	return meta.URL + "#" + meta.Sha256
}

// LoadStamps reads the stamps file. A missing file yields empty stamps.
func LoadStamps(path string) (Stamps, error) {
	stamps := Stamps{}
	data, err := os.ReadFile(path)
	if err != nil {
		if eris.Is(err, os.ErrNotExist) {
			return stamps, nil
		}
		return nil, eris.Wrapf(err, "Failed to read stamps file %s.", path)
	}

	err = json.Unmarshal(data, &stamps)
	if err != nil {
		return nil, eris.Wrapf(err, "Failed to parse JSON file %s.", path)
	}
	return stamps, nil
}

// Save writes the stamps to path.
func (s Stamps) Save(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return eris.Wrap(err, "Failed to encode stamps")
	}

	err = os.WriteFile(path, data, 0o660)
	if err != nil {
		return eris.Wrapf(err, "Failed to write %s", path)
	}
	return nil
}

var (
	depsHeader = regexp.MustCompile(`(?m)^deps:[ \t]*\r?$`)
	blankLine  = regexp.MustCompile(`(?m)^[ \t]*\r?$`)
)

// UpdateChecksums rewrites the sha256 values of the given dependencies in the raw DEPS.yml content
// and returns the new content. Dependencies without a sha256 line get one inserted after their name.
func (c *Config) UpdateChecksums(changes map[string]string) (string, error) {
	generated := c.raw
	eol := "\n"
	if strings.Contains(generated, "\r\n") {
		eol = "\r\n"
	}

	names := make([]string, 0, len(changes))
	for name := range changes {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		newChecksum := changes[name]

		offset := 0
		if loc := depsHeader.FindStringIndex(generated); loc != nil {
			offset = loc[1]
		}

		header := regexp.MustCompile(`(?m)^[ \t]*` + regexp.QuoteMeta(name) + `:[ \t]*\r?\n`)
		loc := header.FindStringIndex(generated[offset:])
		if loc == nil {
			return "", eris.Errorf("Failed to find the section for %s!", name)
		}

		bodyStart := offset + loc[1]
		section := generated[bodyStart:]
		if end := blankLine.FindStringIndex(section); end != nil {
			section = section[:end[0]]
		}

		oldChecksum := c.Deps[name].Sha256
		subPos := -1
		if oldChecksum != "" {
			subPos = strings.Index(section, "sha256: "+oldChecksum)
		}

		if subPos == -1 {
			if oldChecksum != "" {
				return "", eris.Errorf("Couldn't find checksum section for %s.", name)
			}

			indent := detectIndent(section)
			generated = generated[:bodyStart] + indent + "sha256: " + newChecksum + eol + generated[bodyStart:]
		} else {
			start := bodyStart + subPos + len("sha256: ")
			end := start + len(oldChecksum)
			generated = generated[:start] + newChecksum + generated[end:]
		}
	}

	return generated, nil
}

func detectIndent(section string) string {
	line := section
	if idx := strings.Index(line, "\n"); idx > -1 {
		line = line[:idx]
	}
	line = strings.TrimRight(line, "\r")
	trimmed := strings.TrimLeft(line, " \t")
	if trimmed == "" {
		return "    "
	}
	return line[:len(line)-len(trimmed)]
}
