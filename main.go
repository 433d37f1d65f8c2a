package main

import (
	"os"

	"github.com/reelcap/reelcap/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
