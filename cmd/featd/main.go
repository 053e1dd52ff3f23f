// Package main is the entry point for the featd daemon CLI.
package main

import (
	"os"

	"github.com/aryasuneesh/feature-discovery/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
