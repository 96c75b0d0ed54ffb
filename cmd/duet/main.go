package main

import (
	"fmt"
	"os"

	"duet/internal/cli"
)

func main() {
	os.Exit(run())
}

func run() int {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "duet: %v\n", err)
		return 1
	}
	return 0
}
