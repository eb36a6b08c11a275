// Package version derives the Strata version string from the project file or from
// version control metadata.
package version

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/rotisserie/eris"
)

// DefaultVersion is reported when no source yields a usable version.
const DefaultVersion = "0.0.0"

// Source identifies where a version was read from.
type Source string

const (
	SourceAuto    Source = "auto"
	SourceProject Source = "project"
	SourceGit     Source = "git"
	SourceSvn     Source = "svn"
	SourceDefault Source = "default"
)

// Info is the result of a version lookup.
type Info struct {
	Base     *semver.Version
	Source   Source
	Commits  int
	Hash     string
	Revision string
	Dirty    bool
}

// Parse normalizes a version string. Two component versions such as 0.5 become 0.5.0.
func Parse(raw string) (*semver.Version, error) {
	v, err := semver.NewVersion(strings.TrimSpace(raw))
	if err != nil {
		return nil, eris.Wrapf(err, "invalid version %q", raw)
	}

	return v, nil
}

func mustParse(raw string) *semver.Version {
	v, err := Parse(raw)
	if err != nil {
		return semver.MustParse(DefaultVersion)
	}
	return v
}

// String returns the derived version string.
//
// A clean tagged checkout yields X.Y.Z, commits past a tag yield X.Y.Z-dev.N+g<hash> and
// svn working copies yield X.Y.Z+r<rev>. Uncommitted changes add a "dirty" metadata element.
func (i Info) String() string {
	base := i.Base
	if base == nil {
		base = semver.MustParse(DefaultVersion)
	}

	v := *base
	var err error
	if i.Commits > 0 {
		v, err = v.SetPrerelease(fmt.Sprintf("dev.%d", i.Commits))
		if err != nil {
			return base.String()
		}
	}

	meta := make([]string, 0, 2)
	if i.Commits > 0 && i.Hash != "" {
		meta = append(meta, "g"+i.Hash)
	}
	if i.Revision != "" {
		meta = append(meta, "r"+i.Revision)
	}
	if i.Dirty {
		meta = append(meta, "dirty")
	}

	if len(meta) > 0 {
		v, err = v.SetMetadata(strings.Join(meta, "."))
		if err != nil {
			return base.String()
		}
	}

	return v.String()
}

// MarshalJSON exposes the derived string next to the raw components.
func (i Info) MarshalJSON() ([]byte, error) {
	base := DefaultVersion
	if i.Base != nil {
		base = i.Base.String()
	}

	return json.Marshal(struct {
		Version  string `json:"version"`
		Base     string `json:"base"`
		Source   Source `json:"source"`
		Commits  int    `json:"commits,omitempty"`
		Hash     string `json:"hash,omitempty"`
		Revision string `json:"revision,omitempty"`
		Dirty    bool   `json:"dirty,omitempty"`
	}{i.String(), base, i.Source, i.Commits, i.Hash, i.Revision, i.Dirty})
}
