package main

import (
	"os"

	"github.com/becomeliminal/affect-memory/internal/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
