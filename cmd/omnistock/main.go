package main

import (
	"os"

	"omnistock/cmd/omnistock/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
