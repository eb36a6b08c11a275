package pkg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetProjectRootFindsMarker(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "strata.pro"), []byte("VERSION = 0.5.9\n"), 0o644))

	nested := filepath.Join(root, "source", "widgets")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	found, err := GetProjectRoot(nested, "strata.pro")
	require.NoError(t, err)

	expected, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)
	actual, err := filepath.EvalSymlinks(found)
	require.NoError(t, err)
	assert.Equal(t, expected, actual)
}

func TestGetProjectRootMissing(t *testing.T) {
	dir := t.TempDir()

	_, err := GetProjectRoot(dir, "definitely-not-a-marker.xyz")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Project root not found")
}

func sameDir(t *testing.T, expected, actual string) {
	t.Helper()
	expected, err := filepath.EvalSymlinks(expected)
	require.NoError(t, err)
	actual, err = filepath.EvalSymlinks(actual)
	require.NoError(t, err)
	assert.Equal(t, expected, actual)
}

func TestGetProjectRootPrefersCheckout(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "CMakeLists.txt"), []byte("project(strata)\n"), 0o644))

	src := filepath.Join(root, "src", "gui")
	require.NoError(t, os.MkdirAll(src, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "CMakeLists.txt"), []byte("add_subdirectory(gui)\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "strata.pro"), []byte("VERSION = 0.5.9\n"), 0o644))

	found, err := GetProjectRoot(src)
	require.NoError(t, err)
	sameDir(t, root, found)
}

func TestGetProjectRootTopmostCMakeLists(t *testing.T) {
	root := t.TempDir()
	vcs, err := findUp(root, DefaultRootMarkers[0])
	require.NoError(t, err)
	if vcs != "" {
		t.Skipf("temporary directory is inside the checkout %s", vcs)
	}

	project := filepath.Join(root, "strata")
	src := filepath.Join(project, "src", "gui")
	require.NoError(t, os.MkdirAll(src, 0o755))
	for _, dir := range []string{project, filepath.Join(project, "src"), src} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "CMakeLists.txt"), []byte("\n"), 0o644))
	}

	found, err := GetProjectRoot(src)
	require.NoError(t, err)
	sameDir(t, project, found)
}
