package main

import (
	"os"

	"voicecaption/cli"
)

func main() {
	os.Exit(cli.Execute())
}
