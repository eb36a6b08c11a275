// Package console renders zerolog events as short colored lines for interactive use.
package console

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/mitchellh/colorstring"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// DebugEnv enables verbose event dumps and error stack traces when set to a non-empty value.
const DebugEnv = "STRATA_DEBUG"

// prefixFields are printed in front of the message, in this order.
var prefixFields = []string{"arch", "task"}

// Writer is a zerolog output which decodes each JSON event and prints a colored summary.
type Writer struct {
	out     io.Writer
	noColor bool
	buffer  strings.Builder
	lock    sync.Mutex
}

// NewWriter creates a Writer that prints to out. Passing nil selects stderr.
func NewWriter(out io.Writer, noColor bool) *Writer {
	if out == nil {
		out = os.Stderr
	}

	return &Writer{out: out, noColor: noColor}
}

func (w *Writer) Write(p []byte) (n int, err error) {
	w.lock.Lock()
	defer w.lock.Unlock()

	var evt map[string]interface{}
	d := json.NewDecoder(bytes.NewReader(p))
	d.UseNumber()
	err = d.Decode(&evt)
	if err != nil {
		return n, eris.Wrapf(err, "cannot decode event: %s", p)
	}

	w.buffer.Reset()
	switch evt[zerolog.LevelFieldName] {
	case "fatal", "panic", "error":
		w.buffer.WriteString("[red]")
	case "warn":
		w.buffer.WriteString("[yellow]")
	case "debug", "trace":
		w.buffer.WriteString("[blue]")
	default:
		w.buffer.WriteString("[green]")
	}

	for _, field := range prefixFields {
		if value, ok := evt[field].(string); ok {
			w.buffer.WriteString(value + ": ")
		}
	}

	if evt[zerolog.LevelFieldName] == "error" {
		w.buffer.WriteString("Error: ")
	}

	msg, _ := evt[zerolog.MessageFieldName].(string)

	if path, ok := evt["path"].(string); ok {
		// simplify the path
		relPath, err := filepath.Rel(".", path)
		if err == nil {
			msg = strings.ReplaceAll(msg, path, relPath)
		}
	}

	w.buffer.WriteString(msg)

	if errorDetails, ok := evt[zerolog.ErrorFieldName].(string); ok {
		w.buffer.WriteString("\n")
		w.buffer.WriteString(errorDetails)
	}

	if os.Getenv(DebugEnv) != "" {
		w.buffer.WriteString("\n")
		names := make([]string, 0, len(evt))
		for name := range evt {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			w.buffer.WriteString(fmt.Sprintf("  %s: %+v\n", name, evt[name]))
		}
	}

	w.buffer.WriteString("[reset]\n")

	colorizer := colorstring.Colorize{
		Colors:  colorstring.DefaultColors,
		Disable: w.noColor,
		Reset:   true,
	}
	_, err = io.WriteString(w.out, colorizer.Color(w.buffer.String()))
	if err != nil {
		return 0, err
	}

	// zerolog expects the length of the consumed event, not of the rendered line
	return len(p), nil
}

func init() {
	zerolog.ErrorMarshalFunc = func(err error) interface{} {
		return eris.ToString(err, os.Getenv(DebugEnv) != "")
	}
}
