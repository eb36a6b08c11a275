package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arkottke/strata-tools/pkg"
	"github.com/arkottke/strata-tools/pkg/figures"
)

var figureCmd = &cobra.Command{
	Use:   "figure",
	Short: "Renders the user manual figures from exported data",
}

type figureKind struct {
	name  string
	use   string
	short string
	args  cobra.PositionalArgs
}

var figureKinds = []figureKind{
	{figures.KindTransferFunction, "<csv>...", "Plots |TF| against frequency, one line per file", cobra.MinimumNArgs(1)},
	{figures.KindStrain, "<csv>", "Plots a strain time series and its effective strain", cobra.ExactArgs(1)},
	{figures.KindInversion, "<csv>", "Compares the inverse RVT correction variants", cobra.ExactArgs(1)},
	{figures.KindFAS, "<csv>", "Plots the rock Fourier amplitude spectrum of an inversion", cobra.ExactArgs(1)},
	{figures.KindAccel, "<at2>", "Plots an acceleration time series from a PEER AT2 file", cobra.ExactArgs(1)},
}

func renderFigure(cmd *cobra.Command, kind string, args []string) error {
	out, err := cmd.Flags().GetString("out")
	if err != nil {
		return err
	}

	exportCSV, err := cmd.Flags().GetBool("csv")
	if err != nil {
		return err
	}

	figs, err := figures.Build(kind, args)
	if err != nil {
		return err
	}

	if kind == figures.KindAccel {
		fmt.Fprintf(cmd.OutOrStdout(), "Input PGA: %.4f g\n", figures.MaxAbs(figs[0].Lines[0].Y))
	}

	written, err := figures.SaveAll(figs, out, exportCSV)
	for _, path := range written {
		pkg.PrintSubtask(path)
	}
	return err
}

func init() {
	for _, k := range figureKinds {
		k := k
		sub := &cobra.Command{
			Use:   k.name + " " + k.use,
			Short: k.short,
			Args:  k.args,
			RunE: func(cmd *cobra.Command, args []string) error {
				return renderFigure(cmd, k.name, args)
			},
		}
		sub.Flags().StringP("out", "o", k.name+".pdf", "output file; the extension selects the format (.pdf, .png, .svg)")
		sub.Flags().Bool("csv", false, "also write the plotted data to a CSV file next to the figure")
		figureCmd.AddCommand(sub)
	}

	rootCmd.AddCommand(figureCmd)
}
