package main

import (
	"os"

	"github.com/re-cinq/overstory/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
