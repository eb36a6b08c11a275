package pkg

import (
	"os"
	"path/filepath"

	"github.com/mitchellh/colorstring"
	"github.com/rotisserie/eris"
)

// DefaultRootMarkers identify the top of a Strata checkout. Each group is searched across all
// ancestors before the next one is tried, so a checkout beats a nested project file.
var DefaultRootMarkers = [][]string{{".git", ".svn"}, {"strata.pro"}, {cmakeMarker}}

const cmakeMarker = "CMakeLists.txt"

// GetProjectRoot walks up from start until it finds a directory containing one of the markers.
// Without markers, DefaultRootMarkers are used. If start is empty, the current working directory is used.
func GetProjectRoot(start string, markers ...string) (string, error) {
	if start == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", eris.Wrap(err, "Failed to determine working directory")
		}
		start = wd
	}

	mypath, err := filepath.Abs(start)
	if err != nil {
		return "", eris.Wrapf(err, "Failed to resolve %s", start)
	}

	groups := DefaultRootMarkers
	if len(markers) > 0 {
		groups = [][]string{markers}
	}

	for _, group := range groups {
		root, err := findUp(mypath, group)
		if err != nil {
			return "", err
		}
		if root == "" {
			continue
		}

		if len(markers) == 0 && len(group) == 1 && group[0] == cmakeMarker {
			// every CMake subdirectory has its own CMakeLists.txt, take the topmost of the chain
			for {
				parent := filepath.Dir(root)
				if parent == root || !hasMarker(parent, cmakeMarker) {
					break
				}
				root = parent
			}
		}
		return root, nil
	}

	return "", eris.New("Project root not found")
}

func hasMarker(dir, marker string) bool {
	_, err := os.Stat(filepath.Join(dir, marker))
	return err == nil
}

// findUp returns the closest ancestor of mypath (itself included) that contains one of the
// markers, or an empty string if there is none.
func findUp(mypath string, markers []string) (string, error) {
	for {
		for _, marker := range markers {
			_, err := os.Stat(filepath.Join(mypath, marker))
			if err == nil {
				return mypath, nil
			}

			if !eris.Is(err, os.ErrNotExist) {
				return "", eris.Wrap(err, "Error ocurred while searching for project root")
			}
		}

		nextPath := filepath.Dir(mypath)
		if mypath == nextPath {
			return "", nil
		}
		mypath = nextPath
	}
}

func PrintTask(msg string) {
	colorstring.Printf("[blue][bold]==>[default] %s\n", msg)
}

func PrintSubtask(msg string) {
	colorstring.Printf("[green][bold]  ->[reset] %s\n", msg)
}

func PrintError(msg string) {
	colorstring.Printf("[red][bold]  ->[reset] %s\n", msg)
}
