package main

import (
	"os"

	"github.com/wonny/ledgerflow/cmd/ledgerflow/commands"
)

// main is the entry point for the ledgerflow CLI
// ⭐ 통합 CLI 진입점: go run ./cmd/ledgerflow [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
