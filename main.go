package main

import (
	"os"

	"github.com/dans-labs/transformer/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
