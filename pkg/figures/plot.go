package figures

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// Line is one data series of a figure.
type Line struct {
	Label string
	X     []float64
	Y     []float64
	// Dashed draws a dashed line, Points draws markers without a line.
	Dashed bool
	Points bool
}

// Axis limits. A zero Min and Max lets the plot pick the range.
type Axis struct {
	Label string
	Log   bool
	Min   float64
	Max   float64
}

// Figure is a single plot.
type Figure struct {
	// Name is appended to the output name of figures which produce more than one file.
	Name  string
	Title string
	X     Axis
	Y     Axis
	Lines []Line
}

// Default figure size, matching the manual's column width.
var (
	DefaultWidth  = 6 * vg.Inch
	DefaultHeight = 4 * vg.Inch
)

// points drops the values which a log axis can't show as well as NaNs.
func (f *Figure) points(l Line) plotter.XYs {
	n := len(l.X)
	if len(l.Y) < n {
		n = len(l.Y)
	}

	xys := make(plotter.XYs, 0, n)
	for i := 0; i < n; i++ {
		x, y := l.X[i], l.Y[i]
		if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
			continue
		}
		if (f.X.Log && x <= 0) || (f.Y.Log && y <= 0) {
			continue
		}
		xys = append(xys, plotter.XY{X: x, Y: y})
	}
	return xys
}

func configureAxis(axis *plot.Axis, spec Axis) {
	axis.Label.Text = spec.Label
	if spec.Log {
		axis.Scale = plot.LogScale{}
		axis.Tick.Marker = plot.LogTicks{Prec: -1}
	}
}

// limitAxis fixes the range. It must run after the plotters were added since adding them grows the
// range to fit their data.
func limitAxis(axis *plot.Axis, spec Axis) {
	if spec.Min != 0 || spec.Max != 0 {
		axis.Min = spec.Min
		axis.Max = spec.Max
	}
}

// Plot builds the gonum plot for the figure.
func (f *Figure) Plot() (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = f.Title
	configureAxis(&p.X, f.X)
	configureAxis(&p.Y, f.Y)
	p.Add(plotter.NewGrid())
	p.Legend.Top = true

	drawn := 0
	for idx, l := range f.Lines {
		xys := f.points(l)
		if len(xys) == 0 {
			continue
		}

		if l.Points {
			s, err := plotter.NewScatter(xys)
			if err != nil {
				return nil, eris.Wrapf(err, "invalid data for %s", l.Label)
			}
			s.GlyphStyle.Color = plotutil.Color(idx)
			s.GlyphStyle.Shape = draw.CircleGlyph{}
			s.GlyphStyle.Radius = vg.Points(2.5)
			p.Add(s)
			if l.Label != "" {
				p.Legend.Add(l.Label, s)
			}
		} else {
			line, err := plotter.NewLine(xys)
			if err != nil {
				return nil, eris.Wrapf(err, "invalid data for %s", l.Label)
			}
			line.LineStyle.Color = plotutil.Color(idx)
			line.LineStyle.Width = vg.Points(1.5)
			if l.Dashed {
				line.LineStyle.Dashes = []vg.Length{vg.Points(6), vg.Points(3)}
			}
			p.Add(line)
			if l.Label != "" {
				p.Legend.Add(l.Label, line)
			}
		}
		drawn++
	}

	if drawn == 0 {
		return nil, eris.Errorf("figure %q has no data to plot", f.Title)
	}
	limitAxis(&p.X, f.X)
	limitAxis(&p.Y, f.Y)

	return p, nil
}

// Save renders the figure. The format follows the extension of path (.pdf, .png, .svg or .eps).
func (f *Figure) Save(path string, width, height vg.Length) error {
	p, err := f.Plot()
	if err != nil {
		return err
	}

	err = p.Save(width, height, path)
	if err != nil {
		return eris.Wrapf(err, "failed to save %s", path)
	}
	return nil
}

// WriteCSV writes the plotted data in long form: one row per point with its series label.
func (f *Figure) WriteCSV(w io.Writer) error {
	out := csv.NewWriter(w)
	if err := out.Write([]string{"series", "x", "y"}); err != nil {
		return eris.Wrap(err, "failed to write CSV header")
	}

	for idx, l := range f.Lines {
		label := l.Label
		if label == "" {
			label = "series" + strconv.Itoa(idx+1)
		}

		for _, pt := range f.points(l) {
			err := out.Write([]string{
				label,
				strconv.FormatFloat(pt.X, 'g', -1, 64),
				strconv.FormatFloat(pt.Y, 'g', -1, 64),
			})
			if err != nil {
				return eris.Wrap(err, "failed to write CSV row")
			}
		}
	}

	out.Flush()
	return eris.Wrap(out.Error(), "failed to flush CSV")
}

// OutputPath returns the file a figure is written to. Figures with a name get it appended to the
// base name: out.pdf becomes out-fas.pdf.
func OutputPath(out string, f *Figure) string {
	if f.Name == "" {
		return out
	}

	ext := filepath.Ext(out)
	return strings.TrimSuffix(out, ext) + "-" + f.Name + ext
}

// SaveAll writes every figure next to out and optionally exports its data to a CSV file with the
// same base name. It returns the written paths.
func SaveAll(figs []*Figure, out string, exportCSV bool) ([]string, error) {
	if dir := filepath.Dir(out); dir != "" {
		if err := os.MkdirAll(dir, 0o770); err != nil {
			return nil, eris.Wrapf(err, "failed to create %s", dir)
		}
	}

	var written []string
	for _, f := range figs {
		path := OutputPath(out, f)
		if err := f.Save(path, DefaultWidth, DefaultHeight); err != nil {
			return written, err
		}
		written = append(written, path)

		if !exportCSV {
			continue
		}

		csvPath := strings.TrimSuffix(path, filepath.Ext(path)) + ".csv"
		handle, err := os.Create(csvPath)
		if err != nil {
			return written, eris.Wrapf(err, "failed to create %s", csvPath)
		}

		err = f.WriteCSV(handle)
		closeErr := handle.Close()
		if err != nil {
			return written, err
		}
		if closeErr != nil {
			return written, eris.Wrapf(closeErr, "failed to write %s", csvPath)
		}
		written = append(written, csvPath)
	}

	return written, nil
}
