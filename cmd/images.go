package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/arkottke/strata-tools/pkg"
	"github.com/arkottke/strata-tools/pkg/config"
	"github.com/arkottke/strata-tools/pkg/imgconv"
)

var pdf2pngCmd = &cobra.Command{
	Use:   "pdf2png [dir]",
	Short: "Converts the first page of every PDF in a directory to PNG",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "."
		if len(args) > 0 {
			dir = args[0]
		}

		opts := imgconv.PDFOptions{
			Dir:        dir,
			Rasterizer: cfg.Images.Rasterizer,
			DPI:        cfg.Images.DPI,
			Jobs:       cfg.Images.Jobs,
			Progress:   cmd.ErrOrStderr(),
			Logger:     &logger,
		}

		flags := cmd.Flags()
		if flags.Changed("rasterizer") {
			opts.Rasterizer, _ = flags.GetString("rasterizer")
		}
		if flags.Changed("dpi") {
			opts.DPI, _ = flags.GetInt("dpi")
		}
		if flags.Changed("jobs") {
			opts.Jobs, _ = flags.GetInt("jobs")
		}
		opts.Force, _ = flags.GetBool("force")

		res, err := imgconv.PDFToPNG(cmd.Context(), opts)
		logger.Info().Str("task", "pdf2png").Msgf("%d converted, %d up to date", len(res.Converted), len(res.Skipped))
		return err
	},
}

func parseSizes(value string) ([]int, error) {
	items := config.SplitList(value)
	sizes := make([]int, 0, len(items))
	for _, item := range items {
		size, err := strconv.Atoi(item)
		if err != nil {
			return nil, eris.Wrapf(err, "Invalid icon size %q", item)
		}
		sizes = append(sizes, size)
	}
	return sizes, nil
}

var svg2icoCmd = &cobra.Command{
	Use:   "svg2ico <input.svg> [output.ico]",
	Short: "Renders an SVG icon into a Windows ICO file with several sizes",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := args[0]
		out := strings.TrimSuffix(in, filepath.Ext(in)) + ".ico"
		if len(args) > 1 {
			out = args[1]
		}

		sizes, err := cfg.IconSizes()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("sizes") {
			value, _ := cmd.Flags().GetString("sizes")
			sizes, err = parseSizes(value)
			if err != nil {
				return err
			}
		}

		data, err := os.ReadFile(in)
		if err != nil {
			return eris.Wrapf(err, "Failed to read %s", in)
		}

		images, err := imgconv.RenderSVGSizes(data, sizes)
		if err != nil {
			return err
		}

		var buf bytes.Buffer
		if err := imgconv.WriteICO(&buf, images); err != nil {
			return err
		}

		if err := os.WriteFile(out, buf.Bytes(), 0o644); err != nil {
			return eris.Wrapf(err, "Failed to write %s", out)
		}

		pkg.PrintSubtask(out)
		return nil
	},
}

func init() {
	pdf2pngCmd.Flags().String("rasterizer", "", "external rasterizer: pdftoppm, magick or gs (default from config)")
	pdf2pngCmd.Flags().Int("dpi", 0, "output resolution (default from config)")
	pdf2pngCmd.Flags().IntP("jobs", "j", 0, "number of parallel conversions (default from config)")
	pdf2pngCmd.Flags().BoolP("force", "f", false, "convert files even if the PNG is up to date")

	svg2icoCmd.Flags().String("sizes", "", "comma separated icon sizes (default from config)")

	rootCmd.AddCommand(pdf2pngCmd)
	rootCmd.AddCommand(svg2icoCmd)
}
