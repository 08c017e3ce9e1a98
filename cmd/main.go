package main

import (
	"os"

	"github.com/RishiKendai/contestguard/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
