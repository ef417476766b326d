// Command orchard runs the consultation and prescription workflow.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/orchard/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		if !cli.IsReported(err) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
