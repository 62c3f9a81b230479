package main

import (
	"os"

	"github.com/wonny/augur/backend/cmd/augur/commands"
)

// main is the entry point for the Augur CLI
// ⭐ 통합 CLI 진입점: go run ./cmd/augur [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
