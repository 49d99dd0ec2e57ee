// Package main provides the entry point for the mandex command.
package main

import (
	"os"

	"mandexing/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
