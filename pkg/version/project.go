package version

import (
	"io"
	"os"
	"regexp"

	"github.com/rotisserie/eris"
)

var projectPatterns = []*regexp.Regexp{
	// qmake: VERSION = 0.5.9, optionally followed by a comment
	regexp.MustCompile(`(?m)^[ \t]*VERSION[ \t]*=[ \t]*"?(\d+(?:\.\d+){0,2})"?[ \t]*(?:#.*)?\r?$`),
	// CMake: project(strata VERSION 0.5.9 LANGUAGES CXX)
	regexp.MustCompile(`(?is)\bproject[ \t]*\([^)]*?\bVERSION[ \t\r\n]+(\d+(?:\.\d+){0,2})`),
	// C/C++ header: #define STRATA_VERSION "0.5.9"
	regexp.MustCompile(`(?m)^[ \t]*#[ \t]*define[ \t]+\w*VERSION\w*[ \t]+"(\d+(?:\.\d+){0,2})"`),
}

// ParseProjectVersion returns the first version number declared in a project configuration
// file, or DefaultVersion if none of the known declarations is present.
func ParseProjectVersion(r io.Reader) (string, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return "", eris.Wrap(err, "failed to read project file")
	}

	best := -1
	found := DefaultVersion
	for _, pattern := range projectPatterns {
		loc := pattern.FindSubmatchIndex(content)
		if loc == nil {
			continue
		}

		if best == -1 || loc[0] < best {
			best = loc[0]
			found = string(content[loc[2]:loc[3]])
		}
	}

	return found, nil
}

// FromProjectFile reads the version declared in the given file.
func FromProjectFile(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, eris.Wrapf(err, "could not open project file %s", path)
	}
	defer f.Close()

	raw, err := ParseProjectVersion(f)
	if err != nil {
		return Info{}, eris.Wrapf(err, "failed to parse %s", path)
	}

	base, err := Parse(raw)
	if err != nil {
		return Info{}, err
	}

	source := SourceProject
	if raw == DefaultVersion {
		source = SourceDefault
	}

	return Info{Base: base, Source: source}, nil
}
