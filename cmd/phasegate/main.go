package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/pablasso/phasegate/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		var ee *cli.ExitError
		if !errors.As(err, &ee) || ee.Message != "" {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(cli.ExitCode(err))
	}
}
