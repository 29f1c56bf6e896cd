// Package main is the entry point for the scvv player.
package main

import (
	"os"

	"github.com/jmylchreest/scvv/cmd/scvv/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
