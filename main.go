// Command vtsdeck builds StreamDock profiles from the models and hotkeys of
// a running VTube Studio.
package main

import (
	"os"

	"github.com/jiuai233/StreamDeck/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
