// Command fedplan plans analytic queries against federated data sources.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/fedplan/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
