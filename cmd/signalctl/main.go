package main

import (
	"os"

	"adaptive-signal-rl/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
