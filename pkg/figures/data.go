// Package figures renders the user manual figures from data exported by Strata.
package figures

import (
	"bufio"
	"encoding/csv"
	"io"
	"math"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// Series is a reference column (frequency, time, period...) with one or more value columns of
// the same length. Exports of multiple realizations also carry their median and standard deviation.
type Series struct {
	Reference []float64
	Values    [][]float64
	Median    []float64
	Stdev     []float64
}

// HasStats reports whether the file contained median and standard deviation columns.
func (s *Series) HasStats() bool {
	return s.Median != nil
}

// Primary returns the column to plot: the median for statistical exports, the single value
// column otherwise.
func (s *Series) Primary() []float64 {
	if s.HasStats() {
		return s.Median
	}
	if len(s.Values) > 0 {
		return s.Values[0]
	}
	return nil
}

func newCsvReader(r io.Reader) *csv.Reader {
	reader := csv.NewReader(r)
	reader.Comment = '#'
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	return reader
}

func parseCell(value string, line, col int) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, eris.Wrapf(err, "line %d, column %d: invalid number %q", line, col+1, value)
	}
	return f, nil
}

// LoadCsvData reads an output table exported by Strata.
func LoadCsvData(path string) (*Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to open %s", path)
	}
	defer f.Close()

	series, err := ReadCsvData(f)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to read %s", path)
	}
	return series, nil
}

// ReadCsvData parses an output table. Rows starting with # are skipped. Two columns hold the
// reference and a single value. Wider tables hold the reference, one column per realization
// (empty cells read as 0), then the median and the standard deviation.
func ReadCsvData(r io.Reader) (*Series, error) {
	reader := newCsvReader(r)
	series := &Series{}
	width := 0

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "malformed CSV")
		}

		line, _ := reader.FieldPos(0)
		if width == 0 {
			width = len(row)
			switch {
			case width < 2:
				return nil, eris.Errorf("line %d: expected at least two columns", line)
			case width > 2:
				series.Values = make([][]float64, width-3)
				series.Median = []float64{}
				series.Stdev = []float64{}
			default:
				series.Values = make([][]float64, 1)
			}
		} else if len(row) != width {
			return nil, eris.Errorf("line %d: expected %d columns but found %d", line, width, len(row))
		}

		ref, err := parseCell(row[0], line, 0)
		if err != nil {
			return nil, err
		}
		series.Reference = append(series.Reference, ref)

		if width == 2 {
			value, err := parseCell(row[1], line, 1)
			if err != nil {
				return nil, err
			}
			series.Values[0] = append(series.Values[0], value)
			continue
		}

		for i := 1; i < width-2; i++ {
			value := 0.0
			if strings.TrimSpace(row[i]) != "" {
				value, err = parseCell(row[i], line, i)
				if err != nil {
					return nil, err
				}
			}
			series.Values[i-1] = append(series.Values[i-1], value)
		}

		median, err := parseCell(row[width-2], line, width-2)
		if err != nil {
			return nil, err
		}
		stdev, err := parseCell(row[width-1], line, width-1)
		if err != nil {
			return nil, err
		}
		series.Median = append(series.Median, median)
		series.Stdev = append(series.Stdev, stdev)
	}

	if len(series.Reference) == 0 {
		return nil, eris.New("no data rows")
	}

	return series, nil
}

// Spectrum is one correction variant of an inverse RVT calculation.
type Spectrum struct {
	Period []float64
	Sa     []float64
	Freq   []float64
	Fas    []float64
}

// InversionData holds the target response spectrum and the spectra and Fourier amplitude spectra
// produced by each correction variant of the inverse RVT calculation.
type InversionData struct {
	Target struct {
		Period []float64
		Sa     []float64
	}
	Ratio  Spectrum
	Extrap Spectrum
	Forced Spectrum
}

// Variant names a correction variant.
type Variant struct {
	Name     string
	Spectrum *Spectrum
}

// Variants returns the correction variants in plotting order.
func (d *InversionData) Variants() []Variant {
	return []Variant{
		{"Ratio corrected", &d.Ratio},
		{"Ratio & extrapolated", &d.Extrap},
		{"Ratio, extrap. & slope forced", &d.Forced},
	}
}

const inversionColumns = 14

// LoadInversionData reads the inversion table. See ReadInversionData.
func LoadInversionData(path string) (*InversionData, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to open %s", path)
	}
	defer f.Close()

	data, err := ReadInversionData(f)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to read %s", path)
	}
	return data, nil
}

// ReadInversionData parses a table with the target period and spectral acceleration followed by
// period, spectral acceleration, frequency and Fourier amplitude for each variant. The columns
// have different lengths so empty cells are skipped column by column.
func ReadInversionData(r io.Reader) (*InversionData, error) {
	reader := newCsvReader(r)
	data := &InversionData{}

	columns := []*[]float64{&data.Target.Period, &data.Target.Sa}
	for _, v := range data.Variants() {
		columns = append(columns, &v.Spectrum.Period, &v.Spectrum.Sa, &v.Spectrum.Freq, &v.Spectrum.Fas)
	}

	rows := 0
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "malformed CSV")
		}

		line, _ := reader.FieldPos(0)
		if len(row) > inversionColumns {
			return nil, eris.Errorf("line %d: expected at most %d columns but found %d", line, inversionColumns, len(row))
		}

		for col, cell := range row {
			if strings.TrimSpace(cell) == "" {
				continue
			}

			value, err := parseCell(cell, line, col)
			if err != nil {
				return nil, err
			}
			*columns[col] = append(*columns[col], value)
		}
		rows++
	}

	if rows == 0 {
		return nil, eris.New("no data rows")
	}

	return data, nil
}

// Motion is an acceleration time series read from a PEER AT2 file.
type Motion struct {
	Header   []string
	Count    int
	TimeStep float64
	Accel    []float64
}

var (
	nptsMatcher = regexp.MustCompile(`(?i)NPTS\s*=\s*(\d+)`)
	dtMatcher   = regexp.MustCompile(`(?i)DT\s*=\s*([0-9.eE+-]+)`)
)

// LoadAT2 reads a PEER AT2 file. See ReadAT2.
func LoadAT2(path string) (*Motion, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to open %s", path)
	}
	defer f.Close()

	m, err := ReadAT2(f)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to read %s", path)
	}
	return m, nil
}

func parseAT2Size(line string) (int, float64, error) {
	if m := nptsMatcher.FindStringSubmatch(line); m != nil {
		d := dtMatcher.FindStringSubmatch(line)
		if d == nil {
			return 0, 0, eris.Errorf("missing DT in %q", line)
		}

		count, err := strconv.Atoi(m[1])
		if err != nil {
			return 0, 0, eris.Wrapf(err, "invalid NPTS in %q", line)
		}
		dt, err := strconv.ParseFloat(d[1], 64)
		if err != nil {
			return 0, 0, eris.Wrapf(err, "invalid DT in %q", line)
		}
		return count, dt, nil
	}

	fields := strings.Fields(strings.ReplaceAll(line, ",", " "))
	if len(fields) < 2 {
		return 0, 0, eris.Errorf("expected the point count and time step in %q", line)
	}

	count, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, 0, eris.Wrapf(err, "invalid point count in %q", line)
	}
	dt, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return 0, 0, eris.Wrapf(err, "invalid time step in %q", line)
	}
	return count, dt, nil
}

// maxPrealloc bounds the sample buffer allocated from the point count of an AT2 header.
const maxPrealloc = 1 << 16

// ReadAT2 parses three header lines, a line with the point count and time step (either
// "4000 0.01" or the NGA "NPTS= 4000, DT= .0100 SEC" form) and then whitespace separated
// accelerations in g.
func ReadAT2(r io.Reader) (*Motion, error) {
	scanner := bufio.NewScanner(r)
	m := &Motion{}

	for len(m.Header) < 3 {
		if !scanner.Scan() {
			return nil, eris.New("truncated header")
		}
		m.Header = append(m.Header, strings.TrimRight(scanner.Text(), "\r"))
	}

	if !scanner.Scan() {
		return nil, eris.New("missing point count and time step")
	}

	var err error
	m.Count, m.TimeStep, err = parseAT2Size(scanner.Text())
	if err != nil {
		return nil, err
	}
	if m.Count < 1 || m.TimeStep <= 0 {
		return nil, eris.Errorf("invalid point count %d or time step %g", m.Count, m.TimeStep)
	}

	// the header count is untrusted, let append grow past the first block
	m.Accel = make([]float64, 0, min(m.Count, maxPrealloc))
	for scanner.Scan() && len(m.Accel) < m.Count {
		for _, field := range strings.Fields(scanner.Text()) {
			value, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, eris.Wrapf(err, "invalid acceleration %q", field)
			}
			m.Accel = append(m.Accel, value)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, eris.Wrap(err, "failed to read accelerations")
	}

	if len(m.Accel) < m.Count {
		return nil, eris.Errorf("expected %d accelerations but found %d", m.Count, len(m.Accel))
	}
	m.Accel = m.Accel[:m.Count]

	return m, nil
}

// Time returns the time of every sample.
func (m *Motion) Time() []float64 {
	t := make([]float64, len(m.Accel))
	for i := range t {
		t[i] = float64(i) * m.TimeStep
	}
	return t
}

// PGA returns the peak ground acceleration.
func (m *Motion) PGA() float64 {
	return MaxAbs(m.Accel)
}

// MaxAbs returns the largest absolute value.
func MaxAbs(values []float64) float64 {
	max := 0.0
	for _, v := range values {
		if a := math.Abs(v); a > max {
			max = a
		}
	}
	return max
}

// EffectiveStrain is the strain used by equivalent-linear analyses: 65% of the peak.
func EffectiveStrain(strain []float64) float64 {
	return 0.65 * MaxAbs(strain)
}

// RelativeError returns 100·(v−t)/t for every index where both slices have a value.
func RelativeError(target, values []float64) []float64 {
	n := len(target)
	if len(values) < n {
		n = len(values)
	}

	result := make([]float64, n)
	for i := 0; i < n; i++ {
		result[i] = 100 * (values[i] - target[i]) / target[i]
	}
	return result
}
