package main

import (
	"os"

	"github.com/bryanwahyu/automaton-review/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
