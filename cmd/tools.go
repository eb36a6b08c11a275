package cmd

import (
	"os/exec"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/arkottke/strata-tools/pkg"
	"github.com/arkottke/strata-tools/pkg/config"
)

// ToolStatus is the result of looking up one executable.
type ToolStatus struct {
	Name string
	Path string
}

// Found reports whether the executable is on PATH.
func (s ToolStatus) Found() bool {
	return s.Path != ""
}

var lookPath = exec.LookPath

// checkTools looks up every tool and returns the statuses in order along with the missing names.
func checkTools(names []string) ([]ToolStatus, []string) {
	statuses := make([]ToolStatus, 0, len(names))
	missing := make([]string, 0)
	for _, name := range names {
		path, err := lookPath(name)
		if err != nil {
			missing = append(missing, name)
			path = ""
		}
		statuses = append(statuses, ToolStatus{Name: name, Path: path})
	}
	return statuses, missing
}

var toolsCmd = &cobra.Command{
	Use:   "tools [name]...",
	Short: "Checks that the external tools used by the build are installed",
	Long: `Looks up the executables needed to build Strata (the tools.required config entry or the
given names) on PATH and reports which ones are missing.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		names := args
		if len(names) == 0 {
			names = cfg.RequiredTools()
		}
		if extra, _ := cmd.Flags().GetString("also"); extra != "" {
			names = append(names, config.SplitList(extra)...)
		}

		pkg.PrintTask("Looking for tools")
		statuses, missing := checkTools(names)
		for _, s := range statuses {
			if s.Found() {
				pkg.PrintSubtask(s.Name + ": " + s.Path)
			} else {
				pkg.PrintError(s.Name + ": not found")
			}
		}

		if len(missing) > 0 {
			return eris.Errorf("%d tool(s) missing: %v", len(missing), missing)
		}
		return nil
	},
}

func init() {
	toolsCmd.Flags().String("also", "", "comma separated list of additional tools to check")

	rootCmd.AddCommand(toolsCmd)
}
