package main

import (
	"os"

	"github.com/graphmind/taskstream/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
