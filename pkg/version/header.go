package version

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// WriteHeader writes a C header which defines the version string and its numeric components.
func WriteHeader(w io.Writer, define string, info Info) error {
	if define == "" {
		define = "STRATA_VERSION"
	}

	base := info.Base
	if base == nil {
		base = mustParse(DefaultVersion)
	}

	guard := strings.ToUpper(define) + "_H"
	_, err := fmt.Fprintf(w, `/* Generated by strata-tools; do not edit. */
#ifndef %[1]s
#define %[1]s

#define %[2]s "%[3]s"
#define %[2]s_MAJOR %[4]d
#define %[2]s_MINOR %[5]d
#define %[2]s_PATCH %[6]d

#endif
`, guard, define, info.String(), base.Major(), base.Minor(), base.Patch())
	return err
}

// WriteHeaderFile writes the header to path, leaving an identical file untouched so that
// dependent objects are not rebuilt.
func WriteHeaderFile(path, define string, info Info) (bool, error) {
	var buf strings.Builder
	if err := WriteHeader(&buf, define, info); err != nil {
		return false, err
	}

	existing, err := os.ReadFile(path)
	if err == nil && string(existing) == buf.String() {
		return false, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, eris.Wrapf(err, "failed to create directory for %s", path)
	}

	if err := os.WriteFile(path, []byte(buf.String()), 0o644); err != nil {
		return false, eris.Wrapf(err, "failed to write %s", path)
	}

	return true, nil
}
