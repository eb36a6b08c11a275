package deps

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"
)

// Options controls a Fetch run.
type Options struct {
	ProjectRoot string
	// Vars are merged into the condition variables.
	Vars map[string]string
	// Update downloads every dependency and records checksum changes instead of failing on them.
	Update  bool
	Retries int
	// Progress receives the progress bars. They are hidden if it's nil or if CI=true.
	Progress io.Writer
	Logger   *zerolog.Logger
	Client   *retryablehttp.Client
}

// Result summarizes a Fetch run.
type Result struct {
	Fetched []string
	Skipped []string
	// Changes maps dependency names to their new checksums (only filled in update mode).
	Changes map[string]string
}

// retryLogger forwards retryablehttp's messages to zerolog
type retryLogger struct {
	logger *zerolog.Logger
}

func (l retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error().Fields(keysAndValues).Msg(msg)
}

func (l retryLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Trace().Fields(keysAndValues).Msg(msg)
}

func (l retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn().Fields(keysAndValues).Msg(msg)
}

// NewClient returns an HTTP client which retries failed downloads.
func NewClient(retries int, logger *zerolog.Logger) *retryablehttp.Client {
	client := retryablehttp.NewClient()
	client.HTTPClient.Timeout = 30 * time.Minute
	client.RetryMax = retries
	client.RetryWaitMin = 1 * time.Second
	client.RetryWaitMax = 30 * time.Second
	client.Logger = retryLogger{logger: logger}
	return client
}

func getProgressBar(w io.Writer, length int64, desc string) *progressbar.ProgressBar {
	if w == nil || os.Getenv("CI") == "true" {
		return progressbar.NewOptions64(length, progressbar.OptionSetVisibility(false))
	}

	return progressbar.NewOptions64(length,
		progressbar.OptionSetDescription(desc),
		progressbar.OptionSetWriter(w),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(10),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionShowCount(),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(w, "\n")
		}),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionFullWidth(),
	)
}

// Fetch downloads, verifies and extracts every applicable dependency of cfg. Entries whose stamp
// matches and whose destination exists are skipped. stamps is updated in place.
func Fetch(ctx context.Context, cfg *Config, stamps Stamps, opts Options) (Result, error) {
	result := Result{Changes: map[string]string{}}

	logger := opts.logger()
	client := opts.Client
	if client == nil {
		client = NewClient(opts.Retries, logger)
	}

	vars := cfg.DefaultVars(opts.Vars)
	for _, name := range cfg.Names() {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		meta := cfg.Deps[name]
		// We eval the conditions even if we're updating because we have to evaluate the variable placeholders.
		applies := EvalConditions(&meta, vars)
		if !applies && !opts.Update {
			logger.Debug().Str("task", name).Msg("skipped because its conditions don't match")
			continue
		}

		destPath := filepath.Join(opts.ProjectRoot, meta.Dest)
		destInfo, err := os.Stat(destPath)
		destExists := err == nil

		if stamp, ok := stamps[name]; ok && stamp == stampToken(meta) && destExists {
			result.Skipped = append(result.Skipped, name)
			continue
		}

		if meta.Sha256 == "" && !opts.Update {
			return result, eris.Errorf("Dependency %s doesn't have a checksum", name)
		}

		logger.Info().Str("task", name).Msg(meta.URL)
		err = fetchOne(ctx, client, name, &meta, applies, destPath, destInfo, &result, opts)
		if err != nil {
			return result, err
		}

		if applies {
			stamps[name] = stampToken(meta)
			result.Fetched = append(result.Fetched, name)
		}
	}

	return result, nil
}

func fetchOne(ctx context.Context, client *retryablehttp.Client, name string, meta *Spec, applies bool, destPath string, destInfo os.FileInfo, result *Result, opts Options) error {
	arHandle, err := os.CreateTemp("", "strata-deps-*.tmp")
	if err != nil {
		return eris.Wrap(err, "Failed to create a temporary file")
	}
	defer func() {
		arHandle.Close()
		os.Remove(arHandle.Name())
	}()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, meta.URL, nil)
	if err != nil {
		return eris.Wrapf(err, "Invalid URL %s", meta.URL)
	}

	resp, err := client.Do(req)
	if err != nil {
		return eris.Wrapf(err, "Failed to start download for %s", meta.URL)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return eris.Errorf("Download of %s failed with status %s", meta.URL, resp.Status)
	}

	hash := sha256.New()
	bar := getProgressBar(opts.Progress, resp.ContentLength, "     download")
	_, err = io.Copy(io.MultiWriter(arHandle, hash, bar), resp.Body)
	if err != nil {
		return eris.Wrapf(err, "Failed during download of %s", meta.URL)
	}
	_ = bar.Finish()
	resp.Body.Close()

	digest := hex.EncodeToString(hash.Sum(nil))
	if digest != meta.Sha256 {
		if !opts.Update {
			return eris.Errorf("Checksum check failed for %s: expected %s but got %s", name, meta.Sha256, digest)
		}

		opts.logger().Info().Str("task", name).Msg("Updating checksum")
		result.Changes[name] = digest
		meta.Sha256 = digest
	}

	if !applies {
		return nil
	}

	if destInfo != nil {
		opts.logger().Info().Str("task", name).Msgf("Remove %s", destPath)
		err = os.RemoveAll(destPath)
		if err != nil {
			return eris.Wrapf(err, "Failed to remove %s", destPath)
		}
	}

	extractor, err := getExtractor(meta.URL)
	if err != nil {
		return err
	}

	_, err = arHandle.Seek(0, io.SeekStart)
	if err != nil {
		return eris.Wrap(err, "Failed to rewind the downloaded archive")
	}

	bar = getProgressBar(opts.Progress, resp.ContentLength, "      extract")
	err = extractor(arHandle, bar, destPath, meta.Strip)
	if err != nil {
		return eris.Wrapf(err, "Failed to extract %s", name)
	}
	_ = bar.Finish()

	if runtime.GOOS != "windows" {
		// .zip files don't carry permissions which means we have to manually fix permissions for binaries in .zip files
		for _, binPath := range meta.MarkExec {
			binPath = filepath.Join(destPath, binPath)
			fi, err := os.Stat(binPath)
			if err != nil {
				return eris.Wrapf(err, "Failed to read permissions for %s", binPath)
			}

			err = os.Chmod(binPath, fi.Mode()|0o700)
			if err != nil {
				return eris.Wrapf(err, "Failed to mark %s as executable", binPath)
			}
		}
	}

	return nil
}

func (o Options) logger() *zerolog.Logger {
	if o.Logger == nil {
		nop := zerolog.Nop()
		return &nop
	}
	return o.Logger
}
