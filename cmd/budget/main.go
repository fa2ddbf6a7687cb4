// Command budget tracks monthly category budgets from the terminal.
package main

import (
	"budget/internal/cli"
)

func main() {
	cli.LoadEnvFile()

	if err := newRootCmd().Execute(); err != nil {
		cli.Exit(err)
	}
}
