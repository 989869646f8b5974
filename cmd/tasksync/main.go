// Package main provides the entry point for the tasksync CLI.
package main

import (
	"os"

	"github.com/randalmurphal/tasksync/internal/cli"
	_ "github.com/randalmurphal/tasksync/internal/source"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
