package console

import (
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// Options controls where and how log events are written.
type Options struct {
	Level zerolog.Level
	JSON  bool
	File  string
	Out   io.Writer
}

// NewLogger builds the root logger. The returned closer releases the log file, if one was opened.
func NewLogger(opts Options) (zerolog.Logger, func() error, error) {
	closer := func() error { return nil }

	out := opts.Out
	if out == nil {
		out = os.Stderr
	}

	var writer io.Writer
	if opts.JSON {
		writer = out
	} else {
		writer = NewWriter(out, false)
	}

	if opts.File != "" {
		logFile, err := os.Create(opts.File)
		if err != nil {
			return zerolog.Nop(), closer, eris.Wrapf(err, "Failed to open log file %s", opts.File)
		}
		closer = logFile.Close

		if opts.JSON {
			writer = zerolog.MultiLevelWriter(writer, logFile)
		} else {
			writer = zerolog.MultiLevelWriter(writer, NewWriter(logFile, true))
		}
	}

	logger := zerolog.New(writer).Level(opts.Level)
	if opts.JSON || opts.File != "" {
		logger = logger.With().Timestamp().Logger()
	}

	return logger, closer, nil
}
