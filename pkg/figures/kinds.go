package figures

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Figure kinds rendered by Build.
const (
	KindTransferFunction = "transfer-function"
	KindStrain           = "strain"
	KindInversion        = "irvt"
	KindFAS              = "fas"
	KindAccel            = "accel"
)

// Kinds lists the supported figure kinds.
var Kinds = []string{KindTransferFunction, KindStrain, KindInversion, KindFAS, KindAccel}

func seriesLabel(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

// TransferFunctionFigure plots the amplitude of one or more transfer functions against frequency.
func TransferFunctionFigure(series []*Series, labels []string) *Figure {
	f := &Figure{
		Title: "Transfer function",
		X:     Axis{Label: "Frequency (Hz)"},
		Y:     Axis{Label: "|TF|"},
	}

	for idx, s := range series {
		label := ""
		if idx < len(labels) {
			label = labels[idx]
		}
		f.Lines = append(f.Lines, Line{Label: label, X: s.Reference, Y: s.Primary()})
	}
	return f
}

// StrainFigure plots a shear strain time series and its effective strain.
func StrainFigure(s *Series) *Figure {
	strain := s.Primary()
	eff := EffectiveStrain(strain)

	f := &Figure{
		Title: "Shear strain",
		X:     Axis{Label: "Time (s)"},
		Y:     Axis{Label: "Shear strain (%)"},
		Lines: []Line{{Label: "Strain", X: s.Reference, Y: strain}},
	}

	if n := len(s.Reference); n > 0 {
		f.Lines = append(f.Lines, Line{
			Label:  fmt.Sprintf("Effective strain (%.3g)", eff),
			X:      []float64{s.Reference[0], s.Reference[n-1]},
			Y:      []float64{eff, eff},
			Dashed: true,
		})
	}
	return f
}

// InversionFigures compares the correction variants of an inverse RVT calculation. It produces the
// response spectra with the target, the Fourier amplitude spectra and the relative error of each
// variant.
func InversionFigures(d *InversionData) []*Figure {
	respSpec := &Figure{
		Name:  "respSpec",
		Title: "Response spectra",
		X:     Axis{Label: "Period (s)", Log: true},
		Y:     Axis{Label: "Spectral accel. (g)", Log: true},
	}
	fas := &Figure{
		Name:  "fas",
		Title: "Fourier amplitude spectra",
		X:     Axis{Label: "Frequency (Hz)", Log: true},
		Y:     Axis{Label: "Fourier amplitude (g-s)", Log: true},
	}
	relErr := &Figure{
		Name:  "error",
		Title: "Relative error",
		X:     Axis{Label: "Period (s)", Log: true},
		Y:     Axis{Label: "Relative error (%)"},
	}

	for _, v := range d.Variants() {
		s := v.Spectrum
		respSpec.Lines = append(respSpec.Lines, Line{Label: v.Name, X: s.Period, Y: s.Sa})
		fas.Lines = append(fas.Lines, Line{Label: v.Name, X: s.Freq, Y: s.Fas})

		errs := RelativeError(d.Target.Sa, s.Sa)
		relErr.Lines = append(relErr.Lines, Line{Label: v.Name, X: d.Target.Period, Y: errs})
	}

	respSpec.Lines = append(respSpec.Lines, Line{Label: "Target", X: d.Target.Period, Y: d.Target.Sa, Points: true})

	return []*Figure{respSpec, fas, relErr}
}

// FASFigure plots the Fourier amplitude spectrum computed by random vibration theory for rock.
func FASFigure(d *InversionData) *Figure {
	return &Figure{
		Title: "Fourier amplitude spectrum",
		X:     Axis{Label: "Frequency (Hz)", Log: true, Min: 0.1, Max: 100},
		Y:     Axis{Label: "Fourier amplitude (g-s)", Log: true, Min: 1e-4, Max: 1},
		Lines: []Line{{X: d.Forced.Freq, Y: d.Forced.Fas}},
	}
}

// AccelFigure plots an acceleration time series.
func AccelFigure(m *Motion, label string) *Figure {
	return &Figure{
		Title: fmt.Sprintf("%s (PGA %.3f g)", label, m.PGA()),
		X:     Axis{Label: "Time (s)"},
		Y:     Axis{Label: "Accel. (g)"},
		Lines: []Line{{X: m.Time(), Y: m.Accel}},
	}
}

// Build loads the inputs for the figure kind and returns its figures.
func Build(kind string, inputs []string) ([]*Figure, error) {
	if len(inputs) == 0 {
		return nil, eris.Errorf("%s needs at least one input file", kind)
	}

	switch kind {
	case KindTransferFunction:
		series := make([]*Series, 0, len(inputs))
		labels := make([]string, 0, len(inputs))
		for _, in := range inputs {
			s, err := LoadCsvData(in)
			if err != nil {
				return nil, err
			}
			series = append(series, s)
			labels = append(labels, seriesLabel(in))
		}
		return []*Figure{TransferFunctionFigure(series, labels)}, nil

	case KindStrain:
		s, err := LoadCsvData(inputs[0])
		if err != nil {
			return nil, err
		}
		return []*Figure{StrainFigure(s)}, nil

	case KindInversion, KindFAS:
		d, err := LoadInversionData(inputs[0])
		if err != nil {
			return nil, err
		}
		if kind == KindFAS {
			return []*Figure{FASFigure(d)}, nil
		}
		return InversionFigures(d), nil

	case KindAccel:
		m, err := LoadAT2(inputs[0])
		if err != nil {
			return nil, err
		}
		return []*Figure{AccelFigure(m, seriesLabel(inputs[0]))}, nil
	}

	return nil, eris.Errorf("unknown figure kind %s, expected one of %s", kind, strings.Join(Kinds, ", "))
}
