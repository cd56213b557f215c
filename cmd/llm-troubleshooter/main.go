package main

import (
	"os"

	"github.com/computerscienceiscool/llm-troubleshooter/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
