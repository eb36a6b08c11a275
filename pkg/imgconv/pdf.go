// Package imgconv converts the image assets used by the documentation and the Windows installer.
package imgconv

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"
)

// Supported rasterizers
const (
	Pdftoppm    = "pdftoppm"
	Magick      = "magick"
	Ghostscript = "gs"
)

// CommandRunner runs an external program in dir.
type CommandRunner func(ctx context.Context, dir, name string, args ...string) error

// ExecRunner runs the command with os/exec and includes its stderr in the returned error.
func ExecRunner(ctx context.Context, dir, name string, args ...string) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return eris.Wrapf(err, "%s failed: %s", name, msg)
		}
		return eris.Wrapf(err, "%s failed", name)
	}
	return nil
}

// FilterBySuffix returns the names that end with suffix, in their original order. The comparison
// is case-sensitive.
func FilterBySuffix(names []string, suffix string) []string {
	result := make([]string, 0, len(names))
	for _, name := range names {
		if strings.HasSuffix(name, suffix) {
			result = append(result, name)
		}
	}
	return result
}

// ListFiles returns the sorted names of the regular files in dir that end with suffix.
func ListFiles(dir, suffix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to list %s", dir)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	return FilterBySuffix(names, suffix), nil
}

// RasterizerArgs returns the command line that converts the first page of in to the PNG out.
func RasterizerArgs(rasterizer string, dpi int, in, out string) (string, []string, error) {
	res := strconv.Itoa(dpi)

	switch rasterizer {
	case Pdftoppm, "":
		// pdftoppm appends the extension itself
		return Pdftoppm, []string{"-png", "-r", res, "-singlefile", in, strings.TrimSuffix(out, ".png")}, nil
	case Magick:
		return Magick, []string{"-density", res, in + "[0]", out}, nil
	case Ghostscript:
		return Ghostscript, []string{
			"-dSAFER", "-dBATCH", "-dNOPAUSE", "-dQUIET",
			"-sDEVICE=png16m", "-r" + res, "-dFirstPage=1", "-dLastPage=1",
			"-sOutputFile=" + out, in,
		}, nil
	}

	return "", nil, eris.Errorf("unknown rasterizer %s", rasterizer)
}

// PDFOptions controls PDFToPNG.
type PDFOptions struct {
	Dir        string
	Rasterizer string
	DPI        int
	// Jobs limits the number of concurrent conversions.
	Jobs int
	// Force converts files even if their PNG is newer than the PDF.
	Force    bool
	Run      CommandRunner
	Progress io.Writer
	Logger   *zerolog.Logger
}

// PDFResult lists the converted and skipped PDFs.
type PDFResult struct {
	Converted []string
	Skipped   []string
}

func upToDate(in, out string) bool {
	inInfo, err := os.Stat(in)
	if err != nil {
		return false
	}

	outInfo, err := os.Stat(out)
	if err != nil {
		return false
	}

	return !outInfo.ModTime().Before(inInfo.ModTime())
}

// PDFToPNG converts every PDF in opts.Dir to a PNG next to it.
func PDFToPNG(ctx context.Context, opts PDFOptions) (PDFResult, error) {
	var result PDFResult

	names, err := ListFiles(opts.Dir, ".pdf")
	if err != nil {
		return result, err
	}

	if opts.DPI < 1 {
		opts.DPI = 150
	}
	if opts.Jobs < 1 {
		opts.Jobs = 1
	}
	if opts.Run == nil {
		opts.Run = ExecRunner
	}
	logger := opts.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	// validate the rasterizer before starting any work
	if _, _, err := RasterizerArgs(opts.Rasterizer, opts.DPI, "", ""); err != nil {
		return result, err
	}

	var bar *progressbar.ProgressBar
	if opts.Progress != nil {
		bar = progressbar.NewOptions(len(names),
			progressbar.OptionSetWriter(opts.Progress),
			progressbar.OptionSetDescription("pdf2png"),
			progressbar.OptionShowCount(),
		)
	} else {
		bar = progressbar.NewOptions(len(names), progressbar.OptionSetVisibility(false))
	}

	var mu sync.Mutex
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(opts.Jobs)

	for _, name := range names {
		name := name
		eg.Go(func() error {
			defer func() { _ = bar.Add(1) }()

			in := filepath.Join(opts.Dir, name)
			out := strings.TrimSuffix(in, ".pdf") + ".png"

			if !opts.Force && upToDate(in, out) {
				logger.Debug().Str("task", name).Msg("skipped, PNG is up to date")
				mu.Lock()
				result.Skipped = append(result.Skipped, name)
				mu.Unlock()
				return nil
			}

			cmd, args, err := RasterizerArgs(opts.Rasterizer, opts.DPI, name, filepath.Base(out))
			if err != nil {
				return err
			}

			logger.Info().Str("task", name).Msgf("%s %s", cmd, strings.Join(args, " "))
			err = opts.Run(ctx, opts.Dir, cmd, args...)
			if err != nil {
				return eris.Wrapf(err, "failed to convert %s", name)
			}

			mu.Lock()
			result.Converted = append(result.Converted, name)
			mu.Unlock()
			return nil
		})
	}

	err = eg.Wait()
	_ = bar.Finish()

	sort.Strings(result.Converted)
	sort.Strings(result.Skipped)
	return result, err
}
