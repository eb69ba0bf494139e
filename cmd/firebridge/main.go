// Package main is the entry point for the firebridge CLI.
package main

import (
	"os"

	"github.com/forge-platform/firebridge/internal/adapters/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
