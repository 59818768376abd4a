package main

import (
	"os"

	"gristmigrate/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
