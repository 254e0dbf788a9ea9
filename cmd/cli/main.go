// Package main is the entry point for jobctl.
// jobctl is the terminal tool for enqueueing and inspecting jobs through the
// controller API.
package main

import (
	"os"

	"jobqueue/cmd/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
