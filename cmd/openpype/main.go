package main

import (
	"github.com/tebeka/atexit"

	"github.com/ynput/openpype/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		atexit.Exit(cmd.ExitCode(err))
	}
	atexit.Exit(0)
}
