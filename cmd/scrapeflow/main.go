package main

import (
	"os"

	"github.com/petrijr/scrapeflow/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
