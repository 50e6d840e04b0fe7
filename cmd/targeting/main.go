package main

import (
	"os"

	"github.com/tink3rlabs/targeting/cmd/targeting/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
