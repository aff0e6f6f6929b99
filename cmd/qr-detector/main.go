package main

import (
	"os"

	"github.com/spherical/qr-detector/cmd/qr-detector/commands"
	"github.com/spherical/qr-detector/cmd/qr-detector/ui"
)

func main() {
	if err := commands.Execute(); err != nil {
		ui.Error("%v", err)
		os.Exit(1)
	}
}
