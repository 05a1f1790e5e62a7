package main

import (
	"os"

	"github.com/ledgerlink-dev/ledgerlink/internal/commands"
)

func main() {
	if err := commands.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
