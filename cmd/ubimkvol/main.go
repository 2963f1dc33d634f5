package main

import (
	"os"

	"github.com/nace/ubimkvol/internal/cli"
)

func main() {
	ctx := cli.NewGlobalContext(false, false, false)

	if err := cli.Execute(ctx, cli.NewRootCommand(ctx)); err != nil {
		os.Exit(1)
	}
}
