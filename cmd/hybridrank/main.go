// Package main provides the entry point for the hybridrank CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/hybridrank/cmd/hybridrank/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
