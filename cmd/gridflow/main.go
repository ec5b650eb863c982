package main

import (
	"os"

	"github.com/wonny/gridflow/cmd/gridflow/commands"
)

// main is the entry point for the gridflow CLI: go run ./cmd/gridflow [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
