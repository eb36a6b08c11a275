package main

import "github.com/arkottke/strata-tools/cmd"

func main() {
	cmd.Execute()
}
