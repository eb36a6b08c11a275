package deps

import (
	"archive/tar"
	"archive/zip"
	"compress/bzip2"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/schollz/progressbar/v3"
	"github.com/ulikunitz/xz"
)

type archiveExtractor func(f *os.File, bar *progressbar.ProgressBar, destPath string, strip int) error

// stripPath removes the first strip components from an archive entry name. It returns an empty
// string for entries that don't have enough components or that would escape the destination.
func stripPath(item string, strip int) string {
	item = strings.TrimPrefix(filepath.ToSlash(filepath.Clean(filepath.FromSlash(item))), "/")
	parts := strings.Split(item, "/")
	if len(parts) <= strip {
		return ""
	}

	rel := filepath.FromSlash(strings.Join(parts[strip:], "/"))
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return ""
	}
	return rel
}

// insideDir reports whether the link target, resolved relative to linkDir, stays inside root.
func insideDir(root, linkDir, target string) bool {
	if target == "" || filepath.IsAbs(target) || strings.HasPrefix(target, "/") {
		return false
	}

	rel, err := filepath.Rel(filepath.Clean(root), filepath.Join(linkDir, filepath.FromSlash(target)))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func openExtractorDest(destPath, item string, strip int) (*os.File, string, error) {
	rel := stripPath(item, strip)
	if rel == "" {
		return nil, "", nil
	}

	dest := filepath.Join(destPath, rel)
	destParent := filepath.Dir(dest)
	err := os.MkdirAll(destParent, 0o770)
	if err != nil {
		return nil, "", eris.Wrapf(err, "Failed to create directory %s", destParent)
	}

	destHandle, err := os.Create(dest)
	if err != nil {
		return nil, "", eris.Wrapf(err, "Failed to create file %s", dest)
	}

	return destHandle, dest, nil
}

func trackProgress(f *os.File, bar *progressbar.ProgressBar) {
	pos, err := f.Seek(0, io.SeekCurrent)
	if err == nil {
		_ = bar.Set64(pos)
	}
}

func getExtractor(url string) (archiveExtractor, error) {
	// drop query strings from mirrors
	if idx := strings.IndexAny(url, "?#"); idx > -1 {
		url = url[:idx]
	}

	switch {
	case strings.HasSuffix(url, ".zip"):
		return extractZip, nil
	case strings.HasSuffix(url, ".tar.gz"), strings.HasSuffix(url, ".tgz"):
		return func(f *os.File, bar *progressbar.ProgressBar, destPath string, strip int) error {
			reader, err := gzip.NewReader(f)
			if err != nil {
				return eris.Wrap(err, "Failed to open gzip stream")
			}
			defer reader.Close()

			return extractTar(reader, f, bar, destPath, strip)
		}, nil
	case strings.HasSuffix(url, ".tar.bz2"):
		return func(f *os.File, bar *progressbar.ProgressBar, destPath string, strip int) error {
			return extractTar(bzip2.NewReader(f), f, bar, destPath, strip)
		}, nil
	case strings.HasSuffix(url, ".tar.xz"):
		return func(f *os.File, bar *progressbar.ProgressBar, destPath string, strip int) error {
			reader, err := xz.NewReader(f)
			if err != nil {
				return eris.Wrap(err, "Failed to open xz stream")
			}

			return extractTar(reader, f, bar, destPath, strip)
		}, nil
	}

	return nil, eris.Errorf("Archive format of %s not supported", url)
}

func extractZip(f *os.File, bar *progressbar.ProgressBar, destPath string, strip int) error {
	stat, err := f.Stat()
	if err != nil {
		return err
	}

	archive, err := zip.NewReader(f, stat.Size())
	if err != nil {
		return eris.Wrap(err, "Failed to open zip archive")
	}

	for _, item := range archive.File {
		if strings.HasSuffix(item.Name, "/") {
			continue
		}

		err = extractZipEntry(item, destPath, strip)
		if err != nil {
			return err
		}
		trackProgress(f, bar)
	}

	return nil
}

func extractZipEntry(item *zip.File, destPath string, strip int) error {
	destHandle, dest, err := openExtractorDest(destPath, item.Name, strip)
	if err != nil {
		return err
	}

	if destHandle == nil {
		return nil
	}
	defer destHandle.Close()

	itemHandle, err := item.Open()
	if err != nil {
		return eris.Wrap(err, "Failed to open archive entry")
	}
	defer itemHandle.Close()

	_, err = io.Copy(destHandle, itemHandle)
	if err != nil {
		return eris.Wrapf(err, "Failed to write extracted file %s", dest)
	}

	return destHandle.Close()
}

func extractTar(r io.Reader, f *os.File, bar *progressbar.ProgressBar, destPath string, strip int) error {
	archive := tar.NewReader(r)

	for {
		item, err := archive.Next()
		if err != nil {
			if err == io.EOF {
				break
			}

			return eris.Wrap(err, "Failed to read archive entry")
		}

		fi := item.FileInfo()
		if fi.IsDir() {
			continue
		}

		if item.Typeflag == tar.TypeSymlink {
			rel := stripPath(item.Name, strip)
			if rel == "" {
				continue
			}

			dest := filepath.Join(destPath, rel)
			if !insideDir(destPath, filepath.Dir(dest), item.Linkname) {
				return eris.Errorf("Symlink %s points outside of %s: %s", item.Name, destPath, item.Linkname)
			}

			err = os.MkdirAll(filepath.Dir(dest), 0o770)
			if err != nil {
				return eris.Wrapf(err, "Failed to create directory for %s", dest)
			}

			err = os.Symlink(item.Linkname, dest)
			if err != nil {
				return eris.Wrapf(err, "Failed to create symlink %s pointing to %s", dest, item.Linkname)
			}
			continue
		}

		if item.Typeflag != tar.TypeReg {
			continue
		}

		err = extractTarEntry(archive, item, destPath, strip)
		if err != nil {
			return err
		}
		trackProgress(f, bar)
	}

	return nil
}

func extractTarEntry(archive *tar.Reader, item *tar.Header, destPath string, strip int) error {
	destHandle, dest, err := openExtractorDest(destPath, item.Name, strip)
	if err != nil {
		return err
	}

	if destHandle == nil {
		return nil
	}
	defer destHandle.Close()

	_, err = io.Copy(destHandle, archive)
	if err != nil {
		return eris.Wrapf(err, "Failed to write extracted file %s", dest)
	}

	err = destHandle.Close()
	if err != nil {
		return eris.Wrapf(err, "Failed to close %s", dest)
	}

	return os.Chmod(dest, item.FileInfo().Mode().Perm())
}
