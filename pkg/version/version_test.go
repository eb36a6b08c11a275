package version

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProjectVersion(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"qmake", "TEMPLATE = app\nVERSION = 0.5.9\nCONFIG += qt\n", "0.5.9"},
		{"qmake quoted", "VERSION = \"0.6\"\n", "0.6"},
		{"qmake crlf", "TEMPLATE = app\r\nVERSION = 0.5.9\r\nCONFIG += qt\r\n", "0.5.9"},
		{"qmake trailing comment", "VERSION = 0.5.9 # release\n", "0.5.9"},
		{"qmake crlf trailing comment", "VERSION = 0.5.9\t# release\r\n", "0.5.9"},
		{"qmake suffix", "VERSION = 0.5.9-beta\n", DefaultVersion},
		{"cmake crlf", "project(strata\r\n  VERSION 0.8.1\r\n  LANGUAGES CXX)\r\n", "0.8.1"},
		{"cmake", "cmake_minimum_required(VERSION 3.10)\nproject(strata\n  VERSION 0.8.1\n  LANGUAGES CXX)\n", "0.8.1"},
		{"header", "#pragma once\n#define STRATA_VERSION \"0.4.2\"\n", "0.4.2"},
		{"first wins", "VERSION = 0.1.0\nproject(x VERSION 0.2.0)\n", "0.1.0"},
		{"no match", "TEMPLATE = app\nTARGET = strata\n", DefaultVersion},
		{"empty", "", DefaultVersion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseProjectVersion(strings.NewReader(tt.content))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCMakeMinimumRequiredIsIgnored(t *testing.T) {
	got, err := ParseProjectVersion(strings.NewReader("cmake_minimum_required(VERSION 3.10)\n"))
	require.NoError(t, err)
	assert.Equal(t, DefaultVersion, got)
}

func TestFromProjectFileNormalizes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strata.pro")
	require.NoError(t, os.WriteFile(path, []byte("VERSION = 0.6\n"), 0o644))

	info, err := FromProjectFile(path)
	require.NoError(t, err)
	assert.Equal(t, SourceProject, info.Source)
	assert.Equal(t, "0.6.0", info.String())
}

func TestFromProjectFileMissing(t *testing.T) {
	_, err := FromProjectFile(filepath.Join(t.TempDir(), "strata.pro"))
	require.Error(t, err)
	assert.True(t, eris.Is(err, os.ErrNotExist))
}

func TestParseGitDescribe(t *testing.T) {
	tests := []struct {
		out  string
		want GitDescription
	}{
		{"v0.5.9-0-g1a2b3c4\n", GitDescription{Tag: "v0.5.9", Hash: "1a2b3c4"}},
		{"v0.5.9-12-g1a2b3c4-dirty", GitDescription{Tag: "v0.5.9", Commits: 12, Hash: "1a2b3c4", Dirty: true}},
		{"release-0.6-rc1-3-gdeadbee", GitDescription{Tag: "release-0.6-rc1", Commits: 3, Hash: "deadbee"}},
		{"1a2b3c4", GitDescription{Hash: "1a2b3c4"}},
		{"1a2b3c4-dirty", GitDescription{Hash: "1a2b3c4", Dirty: true}},
	}

	for _, tt := range tests {
		t.Run(tt.out, func(t *testing.T) {
			got, err := ParseGitDescribe(tt.out)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseGitDescribe("fatal: not a git repository")
	require.Error(t, err)
}

func TestParseSvnVersion(t *testing.T) {
	rev, err := ParseSvnVersion("1200:1234MS\n")
	require.NoError(t, err)
	assert.Equal(t, SvnRevision{Revision: "1234", Modified: true, Switched: true}, rev)

	rev, err = ParseSvnVersion("512")
	require.NoError(t, err)
	assert.Equal(t, SvnRevision{Revision: "512"}, rev)

	for _, out := range []string{"exported", "Unversioned directory", ""} {
		_, err := ParseSvnVersion(out)
		assert.Error(t, err, out)
	}
}

func TestInfoString(t *testing.T) {
	base, err := Parse("v0.5.9")
	require.NoError(t, err)

	tests := []struct {
		name string
		info Info
		want string
	}{
		{"tagged", Info{Base: base}, "0.5.9"},
		{"ahead", Info{Base: base, Commits: 12, Hash: "1a2b3c4"}, "0.5.9-dev.12+g1a2b3c4"},
		{"ahead dirty", Info{Base: base, Commits: 2, Hash: "1a2b3c4", Dirty: true}, "0.5.9-dev.2+g1a2b3c4.dirty"},
		{"tagged dirty", Info{Base: base, Hash: "1a2b3c4", Dirty: true}, "0.5.9+dirty"},
		{"svn", Info{Base: base, Revision: "1234"}, "0.5.9+r1234"},
		{"svn modified", Info{Base: base, Revision: "1234", Dirty: true}, "0.5.9+r1234.dirty"},
		{"nil base", Info{}, DefaultVersion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.info.String())
		})
	}
}

func TestInfoJSON(t *testing.T) {
	base, err := Parse("0.5.9")
	require.NoError(t, err)

	data, err := json.Marshal(Info{Base: base, Source: SourceSvn, Revision: "77"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":"0.5.9+r77","base":"0.5.9","source":"svn","revision":"77"}`, string(data))
}

type fakeVCS map[string]string

func (f fakeVCS) run(_ context.Context, _ string, name string, _ ...string) (string, error) {
	out, ok := f[name]
	if !ok {
		return "", eris.Errorf("%s: command not found", name)
	}
	return out, nil
}

func writeProject(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "strata.pro")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDetectAutoPrefersGit(t *testing.T) {
	vcs := fakeVCS{"git": "v0.7.0-4-gabcdef0\n", "svnversion": "99\n"}

	info, err := Detect(context.Background(), Options{
		Source:      SourceAuto,
		ProjectFile: writeProject(t, "VERSION = 0.5.9\n"),
		Run:         vcs.run,
	})
	require.NoError(t, err)
	assert.Equal(t, SourceGit, info.Source)
	assert.Equal(t, "0.7.0-dev.4+gabcdef0", info.String())
}

func TestDetectAutoFallsBackToSvn(t *testing.T) {
	vcs := fakeVCS{"svnversion": "1234M\n"}

	info, err := Detect(context.Background(), Options{
		Source:      SourceAuto,
		ProjectFile: writeProject(t, "VERSION = 0.5.9\n"),
		Run:         vcs.run,
	})
	require.NoError(t, err)
	assert.Equal(t, SourceSvn, info.Source)
	assert.Equal(t, "0.5.9+r1234.dirty", info.String())
}

func TestDetectAutoFallsBackToProjectAndDefault(t *testing.T) {
	vcs := fakeVCS{}

	info, err := Detect(context.Background(), Options{
		Source:      SourceAuto,
		ProjectFile: writeProject(t, "VERSION = 0.5.9\n"),
		Run:         vcs.run,
	})
	require.NoError(t, err)
	assert.Equal(t, "0.5.9", info.String())

	info, err = Detect(context.Background(), Options{
		Source:      SourceAuto,
		ProjectFile: filepath.Join(t.TempDir(), "missing.pro"),
		Run:         vcs.run,
	})
	require.NoError(t, err)
	assert.Equal(t, SourceDefault, info.Source)
	assert.Equal(t, DefaultVersion, info.String())
}

func TestDetectGitWithoutTagUsesProject(t *testing.T) {
	vcs := fakeVCS{"git": "abcdef0\n"}

	info, err := Detect(context.Background(), Options{
		Source:      SourceGit,
		ProjectFile: writeProject(t, "VERSION = 0.5.9\n"),
		Run:         vcs.run,
	})
	require.NoError(t, err)
	assert.Equal(t, "0.5.9", info.String())
}

func TestDetectProjectSourceRequiresFile(t *testing.T) {
	_, err := Detect(context.Background(), Options{
		Source:      SourceProject,
		ProjectFile: filepath.Join(t.TempDir(), "missing.pro"),
		Run:         fakeVCS{}.run,
	})
	require.Error(t, err)
}

func TestWriteHeaderFile(t *testing.T) {
	base, err := Parse("0.5.9")
	require.NoError(t, err)
	info := Info{Base: base, Revision: "12"}

	path := filepath.Join(t.TempDir(), "include", "version.h")
	changed, err := WriteHeaderFile(path, "STRATA_VERSION", info)
	require.NoError(t, err)
	assert.True(t, changed)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), `#define STRATA_VERSION "0.5.9+r12"`)
	assert.Contains(t, string(content), "#define STRATA_VERSION_MINOR 5")

	changed, err = WriteHeaderFile(path, "STRATA_VERSION", info)
	require.NoError(t, err)
	assert.False(t, changed)
}
