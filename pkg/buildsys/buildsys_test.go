package buildsys

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func testCtx(out io.Writer) context.Context {
	logger := zerolog.New(out)
	return WithLogger(context.Background(), &logger)
}

func writeRecipe(t *testing.T, dir, content string) string {
	path := filepath.Join(dir, "installer.star")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func loadRecipe(t *testing.T, dir, content string, options map[string]string) TargetList {
	targets, _, err := RunScript(testCtx(io.Discard), ScriptConfig{
		Filename:    writeRecipe(t, dir, content),
		ProjectRoot: dir,
		Options:     options,
		Configure:   true,
	})
	require.NoError(t, err)
	return targets
}

const archRecipe = `
flavor = option("flavor", "release")

def configure():
    setenv("STRATA_FLAVOR", flavor)
    for arch in ["x86", "x64"]:
        target(
            arch = arch,
            desc = "test " + arch,
            env = {"ARCH": arch},
            path = ["tools/" + arch],
            build = ["echo build $ARCH", ("mkdir", "-p", "out/" + arch)],
            package = [["echo", "package", arch]],
        )
`

func TestRunScriptTargets(t *testing.T) {
	dir := t.TempDir()
	targets := loadRecipe(t, dir, archRecipe, map[string]string{"flavor": "debug"})

	require.Len(t, targets, 2)
	assert.Equal(t, "x86", targets[0].Name)
	assert.Equal(t, "x64", targets[1].Name)

	x86 := targets[0]
	assert.Equal(t, "x86", x86.Env["ARCH"])
	assert.Equal(t, "debug", x86.Env["STRATA_FLAVOR"])
	assert.Equal(t, []string{filepath.Join(dir, "tools", "x86")}, x86.Path)
	assert.Equal(t, filepath.Clean(dir), x86.Base)

	require.Len(t, x86.Build, 2)
	assert.Equal(t, "echo build $ARCH", x86.Build[0].Content)
	assert.Equal(t, "mkdir -p out/x86", x86.Build[1].Content)
	require.Len(t, x86.Package, 1)
	assert.Equal(t, "echo package x86", x86.Package[0].Content)
}

func TestRunScriptOptions(t *testing.T) {
	dir := t.TempDir()
	_, options, err := RunScript(testCtx(io.Discard), ScriptConfig{
		Filename:    writeRecipe(t, dir, archRecipe),
		ProjectRoot: dir,
	})
	require.NoError(t, err)

	require.Contains(t, options, "flavor")
	assert.Equal(t, "release", options["flavor"].Default())
}

func TestRunScriptErrors(t *testing.T) {
	tests := []struct {
		name   string
		recipe string
		want   string
	}{
		{"error builtin", "def configure():\n    error(\"missing toolchain\")\n", "missing toolchain"},
		{"no configure", "x = 1\n", "did not declare a configure function"},
		{"target at global scope", "target(arch = \"x86\")\n", "configure()"},
		{"duplicate", "def configure():\n    target(arch = \"x86\")\n    target(arch = \"x86\")\n", "declared twice"},
		{"bad command", "def configure():\n    target(arch = \"x86\", build = [42])\n", "unexpected type int"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			_, _, err := RunScript(testCtx(io.Discard), ScriptConfig{
				Filename:    writeRecipe(t, dir, tt.recipe),
				ProjectRoot: dir,
				Configure:   true,
			})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestReadYaml(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "versions.yml"), []byte("qt:\n  version: 5.15.2\narchs:\n  - x64\n"), 0o644))

	targets := loadRecipe(t, dir, `
def configure():
    for arch in read_yaml("versions.yml", "archs"):
        target(arch = arch, env = {
            "QT": read_yaml("versions.yml", "qt.version"),
            "MISSING": read_yaml("versions.yml", "qt.missing", "none"),
        })
`, nil)

	require.Len(t, targets, 1)
	assert.Equal(t, "x64", targets[0].Name)
	assert.Equal(t, "5.15.2", targets[0].Env["QT"])
	assert.Equal(t, "none", targets[0].Env["MISSING"])
}

func TestProjectVersionBuiltin(t *testing.T) {
	dir := t.TempDir()
	calls := 0

	targets, _, err := RunScript(testCtx(io.Discard), ScriptConfig{
		Filename: writeRecipe(t, dir, `
def configure():
    target(arch = "x64", desc = project_version() + "/" + project_version())
`),
		ProjectRoot: dir,
		Configure:   true,
		Version: func(context.Context) (string, error) {
			calls++
			return "0.5.9", nil
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "0.5.9/0.5.9", targets[0].Desc)
	assert.Equal(t, 1, calls)
}

const failingRecipe = `
def configure():
    target(
        arch = "x64",
        build = ["echo one > one.txt", "false", "echo two > two.txt"],
        package = [("mkdir", "-p", "dist"), ("mv", "one.txt", "dist")],
    )
`

func TestRunTargetsContinuesAfterFailure(t *testing.T) {
	dir := t.TempDir()
	targets := loadRecipe(t, dir, failingRecipe, nil)

	err := RunTargets(testCtx(io.Discard), targets, RunOptions{Stdout: io.Discard, Stderr: io.Discard})
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 1)
	assert.Contains(t, err.Error(), "build step failed: false")

	assert.FileExists(t, filepath.Join(dir, "two.txt"))
	assert.FileExists(t, filepath.Join(dir, "dist", "one.txt"))
	assert.NoFileExists(t, filepath.Join(dir, "one.txt"))
}

func TestRunTargetsFailFast(t *testing.T) {
	dir := t.TempDir()
	targets := loadRecipe(t, dir, failingRecipe, nil)

	err := RunTargets(testCtx(io.Discard), targets, RunOptions{FailFast: true, Stdout: io.Discard, Stderr: io.Discard})
	require.Error(t, err)

	assert.FileExists(t, filepath.Join(dir, "one.txt"))
	assert.NoFileExists(t, filepath.Join(dir, "two.txt"))
	assert.NoDirExists(t, filepath.Join(dir, "dist"))
}

func TestRunTargetsEnvironment(t *testing.T) {
	dir := t.TempDir()
	targets := loadRecipe(t, dir, `
def configure():
    target(arch = "x64", env = {"ARCH": "x64"}, build = ["echo $ARCH-$STRATA_MODE"])
`, nil)
	targets[0].Env["STRATA_MODE"] = "ci"

	var stdout bytes.Buffer
	err := RunTargets(testCtx(io.Discard), targets, RunOptions{Stdout: &stdout, Stderr: io.Discard})
	require.NoError(t, err)
	assert.Equal(t, "x64-ci\n", stdout.String())
}

func TestRunTargetsDryRun(t *testing.T) {
	dir := t.TempDir()
	targets := loadRecipe(t, dir, archRecipe, nil)

	var logs bytes.Buffer
	err := RunTargets(testCtx(&logs), targets, RunOptions{DryRun: true, Archs: []string{"x64"}})
	require.NoError(t, err)

	assert.NoDirExists(t, filepath.Join(dir, "out"))
	assert.Contains(t, logs.String(), "mkdir -p out/x64")
	assert.NotContains(t, logs.String(), "out/x86")
}

func TestTargetListFilter(t *testing.T) {
	targets := TargetList{{Name: "x86", Arch: "x86"}, {Name: "x64", Arch: "x64"}}

	selected, err := targets.Filter([]string{"x64"})
	require.NoError(t, err)
	require.Len(t, selected, 1)
	assert.Equal(t, "x64", selected[0].Name)

	selected, err = targets.Filter(nil)
	require.NoError(t, err)
	assert.Len(t, selected, 2)

	_, err = targets.Filter([]string{"arm64"})
	require.Error(t, err)
}

func TestComposeEnv(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("PATH handling differs on Windows")
	}

	env := composeEnv(
		[]string{"PATH=/bin", "HOME=/root", "ARCH=old"},
		map[string]string{"ARCH": "x64"},
		[]string{"/opt/mingw/bin"},
	)

	assert.Contains(t, env, "HOME=/root")
	assert.Contains(t, env, "ARCH=x64")
	assert.Contains(t, env, "PATH=/opt/mingw/bin:/bin")
	assert.NotContains(t, env, "ARCH=old")
	assert.NotContains(t, env, "PATH=/bin")
}

func TestDefaultRecipePlan(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("the plan uses POSIX paths")
	}

	t.Setenv("MINGW_ROOT", "/opt/mxe")
	root := t.TempDir()

	targets, _, err := RunScript(testCtx(io.Discard), ScriptConfig{
		Filename:    filepath.Join(root, DefaultRecipeName),
		Source:      DefaultRecipe,
		ProjectRoot: root,
		Configure:   true,
		Version: func(context.Context) (string, error) {
			return "0.5.9", nil
		},
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Plan(&buf, root, targets))
	assert.False(t, strings.Contains(buf.String(), root), "plan should not contain absolute project paths")

	g := goldie.New(t)
	g.Assert(t, "default-plan", buf.Bytes())
}
