package main

import (
	"os"

	"github.com/opd-ai/noisemobile/cmd/noisectl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
