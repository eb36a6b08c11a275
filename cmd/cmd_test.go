package cmd

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}

	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)

	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestParseOptions(t *testing.T) {
	options, err := parseOptions([]string{"jobs=8", "mingw_root=/opt/mxe", "empty="})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"jobs": "8", "mingw_root": "/opt/mxe", "empty": ""}, options)

	for _, arg := range []string{"jobs", "=8"} {
		_, err := parseOptions([]string{arg})
		require.Error(t, err, arg)
		assert.Contains(t, err.Error(), "expected OPTION=VALUE")
	}
}

func TestParseSizes(t *testing.T) {
	sizes, err := parseSizes("16, 32,,256")
	require.NoError(t, err)
	assert.Equal(t, []int{16, 32, 256}, sizes)

	_, err = parseSizes("16,big")
	require.Error(t, err)
}

func TestResolve(t *testing.T) {
	root := filepath.Join(string(filepath.Separator), "src", "strata")
	assert.Equal(t, filepath.Join(root, "strata.pro"), resolve(root, "strata.pro"))
	assert.Equal(t, "", resolve(root, ""))

	abs := filepath.Join(string(filepath.Separator), "tmp", "x.pro")
	assert.Equal(t, abs, resolve(root, abs))
}

func fakeLookPath(t *testing.T, found map[string]string) {
	orig := lookPath
	lookPath = func(name string) (string, error) {
		if path, ok := found[name]; ok {
			return path, nil
		}
		return "", eris.Errorf("%s not found", name)
	}
	t.Cleanup(func() { lookPath = orig })
}

func TestCheckTools(t *testing.T) {
	fakeLookPath(t, map[string]string{"git": "/usr/bin/git"})

	statuses, missing := checkTools([]string{"git", "makensis"})
	require.Len(t, statuses, 2)
	assert.True(t, statuses[0].Found())
	assert.Equal(t, "/usr/bin/git", statuses[0].Path)
	assert.False(t, statuses[1].Found())
	assert.Equal(t, []string{"makensis"}, missing)
}

func TestToolsCommand(t *testing.T) {
	fakeLookPath(t, map[string]string{"git": "/usr/bin/git", "qmake": "/usr/bin/qmake"})

	_, err := run(t, "tools", "git", "qmake")
	require.NoError(t, err)

	_, err = run(t, "tools", "git", "--also", "makensis,pdftoppm")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 tool(s) missing")
}

func TestMissingConfigFile(t *testing.T) {
	_, err := run(t, "--config", filepath.Join(t.TempDir(), "missing.toml"), "tools")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Failed to open config")
}

func TestConfigFileAndLogFlags(t *testing.T) {
	fakeLookPath(t, map[string]string{"cmake": "/usr/bin/cmake"})

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "strata-tools.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("[tools]\nrequired = \"cmake\"\n"), 0o644))

	logPath := filepath.Join(dir, "tools.log")
	_, err := run(t, "--config", cfgPath, "--log-level", "debug", "--log-file", logPath, "tools")
	require.NoError(t, err)
	assert.Equal(t, []string{"cmake"}, cfg.RequiredTools())
	assert.FileExists(t, logPath)

	_, err = run(t, "--log-level", "loud", "tools")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log.level")
}

func TestVersionCommand(t *testing.T) {
	dir := t.TempDir()
	project := filepath.Join(dir, "strata.pro")
	require.NoError(t, os.WriteFile(project, []byte("TEMPLATE = subdirs\nVERSION = 0.5.9\n"), 0o644))

	out, err := run(t, "version", "--source", "project", "--file", project, "v")
	require.NoError(t, err)
	assert.Contains(t, out, "v0.5.9\n")

	out, err = run(t, "version", "--source", "project", "--file", project, "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"version":"0.5.9"`)
	assert.Contains(t, out, `"source":"project"`)

	header := filepath.Join(dir, "src", "version.h")
	_, err = run(t, "version", "--source", "project", "--file", project, "--header", header)
	require.NoError(t, err)

	data, err := os.ReadFile(header)
	require.NoError(t, err)
	assert.Contains(t, string(data), `#define STRATA_VERSION "0.5.9"`)

	_, err = run(t, "version", "--source", "cvs", "--file", project)
	require.Error(t, err)
}

const planRecipe = `
jobs = option("jobs", "2")

def configure():
    for arch in ["x86", "x64"]:
        target(
            arch = arch,
            desc = "Strata " + arch,
            base = "//build/" + arch,
            build = [("make", "-j" + jobs)],
            package = ["echo packaged " + arch],
        )
`

func TestInstallerPlanCommand(t *testing.T) {
	recipe := filepath.Join(t.TempDir(), "recipe.star")
	require.NoError(t, os.WriteFile(recipe, []byte(planRecipe), 0o644))

	out, err := run(t, "installer", "plan", "--recipe", recipe, "--arch", "x64", "jobs=8")
	require.NoError(t, err)
	assert.Contains(t, out, "x64: Strata x64\n")
	assert.Contains(t, out, "make -j8")
	assert.NotContains(t, out, "x86: Strata x86")

	_, err = run(t, "installer", "plan", "--recipe", recipe, "--arch", "arm64")
	require.Error(t, err)

	_, err = run(t, "installer", "plan", "--recipe", recipe, "jobs")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected OPTION=VALUE")
}

func TestInstallerDryRun(t *testing.T) {
	dir := t.TempDir()
	recipe := filepath.Join(dir, "recipe.star")
	require.NoError(t, os.WriteFile(recipe, []byte(planRecipe), 0o644))

	out, err := run(t, "installer", "--recipe", recipe, "--dry", "--log-level", "debug")
	require.NoError(t, err)
	assert.Contains(t, out, "echo packaged x86")
	assert.Contains(t, out, "echo packaged x64")
}

func TestFigureCommand(t *testing.T) {
	dir := t.TempDir()
	data := filepath.Join(dir, "surface.csv")
	require.NoError(t, os.WriteFile(data, []byte("# f,tf\n0.1,1\n1,4\n10,0.5\n"), 0o644))

	out := filepath.Join(dir, "figs", "tf.png")
	_, err := run(t, "figure", "transfer-function", data, "--out", out, "--csv")
	require.NoError(t, err)
	assert.FileExists(t, out)
	assert.FileExists(t, filepath.Join(dir, "figs", "tf.csv"))

	at2 := filepath.Join(dir, "motion.at2")
	require.NoError(t, os.WriteFile(at2, []byte("h1\nh2\nh3\n3 0.02\n0.1 -0.25 0.2\n"), 0o644))

	stdout, err := run(t, "figure", "accel", at2, "--out", filepath.Join(dir, "accel.pdf"))
	require.NoError(t, err)
	assert.Contains(t, stdout, "Input PGA: 0.2500 g")

	_, err = run(t, "figure", "strain")
	require.Error(t, err)
}

const squareSVG = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 10 10"><rect width="10" height="10" fill="#336699"/></svg>`

func TestSvg2IcoCommand(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "strata.svg")
	require.NoError(t, os.WriteFile(in, []byte(squareSVG), 0o644))

	_, err := run(t, "svg2ico", in, "--sizes", "16,32")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "strata.ico"))
	require.NoError(t, err)
	require.Greater(t, len(data), 6)
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(data[2:4]))
	assert.Equal(t, uint16(2), binary.LittleEndian.Uint16(data[4:6]))

	_, err = run(t, "svg2ico", in, "--sizes", "512")
	require.Error(t, err)
}

func TestPosixCommands(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "a", "b")

	_, err := run(t, "mkdir", "-p", nested)
	require.NoError(t, err)
	assert.DirExists(t, nested)

	src := filepath.Join(nested, "file.txt")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0o644))

	_, err = run(t, "mv", src, filepath.Join(dir, "moved.txt"))
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "moved.txt"))

	_, err = run(t, "rm", "-r", filepath.Join(dir, "a"))
	require.NoError(t, err)
	assert.NoDirExists(t, filepath.Join(dir, "a"))

	_, err = run(t, "rm", filepath.Join(dir, "missing"))
	require.Error(t, err)

	_, err = run(t, "rm", "-f", filepath.Join(dir, "missing"))
	require.NoError(t, err)
}
