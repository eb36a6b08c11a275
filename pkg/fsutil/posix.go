// Package fsutil contains cross-platform versions of the POSIX mv, rm and mkdir commands. They
// back both the CLI helpers and the in-process handling of these commands inside installer recipes.
package fsutil

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/rotisserie/eris"
)

// ExpandGlobs is true on platforms whose shell does not expand wildcards for us.
var ExpandGlobs = runtime.GOOS == "windows"

func resolve(dir, item string) string {
	if dir == "" || filepath.IsAbs(item) {
		return item
	}
	return filepath.Join(dir, item)
}

func expand(dir string, args []string, allowEmpty bool) ([]string, error) {
	items := make([]string, 0, len(args))
	for _, arg := range args {
		arg = resolve(dir, arg)
		if !ExpandGlobs {
			items = append(items, arg)
			continue
		}

		matches, err := filepath.Glob(arg)
		if err != nil {
			return nil, eris.Wrapf(err, "Failed to resolve pattern %s", arg)
		}

		if matches == nil {
			if allowEmpty {
				continue
			}
			return nil, eris.Errorf("Pattern %s produced no matches!", arg)
		}

		items = append(items, matches...)
	}
	return items, nil
}

// Move moves sources into dest. With more than one source, dest has to be an existing directory.
// Paths are relative to dir.
func Move(dir string, sources []string, dest string) error {
	if len(sources) < 1 {
		return eris.New("Not enough parameters")
	}

	dest = filepath.Clean(resolve(dir, dest))
	destParent := filepath.Dir(dest)
	info, err := os.Stat(destParent)
	if err != nil {
		return eris.Wrapf(err, "Could not find destination directory %s", destParent)
	}

	if !info.IsDir() {
		return eris.Errorf("%s is not a directory!", destParent)
	}

	destIsDir := false
	info, err = os.Stat(dest)
	if err != nil && !eris.Is(err, os.ErrNotExist) {
		return eris.Wrapf(err, "Failed to retrieve info about destination %s", dest)
	}
	if err == nil {
		destIsDir = info.IsDir()
	}

	items, err := expand(dir, sources, false)
	if err != nil {
		return err
	}

	if len(items) > 1 && !destIsDir {
		return eris.Errorf("Can't move multiple items to %s because it is not a directory!", dest)
	}

	for _, item := range items {
		itemDest := dest
		if destIsDir {
			itemDest = filepath.Join(dest, filepath.Base(item))
		}

		err = os.Rename(item, itemDest)
		if err != nil {
			return eris.Wrapf(err, "Failed to move %s to %s", item, itemDest)
		}
	}

	return nil
}

// Remove deletes the given items. Directories require recursive; force ignores missing items.
func Remove(dir string, args []string, recursive, force bool) error {
	items, err := expand(dir, args, force)
	if err != nil {
		return err
	}

	existing := make([]string, 0, len(items))
	for _, item := range items {
		info, err := os.Lstat(item)
		if err != nil {
			if force && eris.Is(err, os.ErrNotExist) {
				continue
			}
			return eris.Wrapf(err, "Could not stat %s", item)
		}

		if info.IsDir() && !recursive {
			return eris.Errorf("%s is a directory but -r wasn't passed", item)
		}
		existing = append(existing, item)
	}

	for _, item := range existing {
		err := os.RemoveAll(item)
		if err != nil && (!force || !eris.Is(err, os.ErrNotExist)) {
			return eris.Wrapf(err, "Could not delete %s", item)
		}
	}

	return nil
}

// Mkdir creates the given directories.
func Mkdir(dir string, args []string, parents bool) error {
	for _, item := range args {
		item = resolve(dir, item)

		var err error
		if parents {
			err = os.MkdirAll(item, 0o770)
		} else {
			err = os.Mkdir(item, 0o770)
		}

		if err != nil {
			return eris.Wrapf(err, "Failed to create %s", item)
		}
	}

	return nil
}
