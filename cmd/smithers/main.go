// Package main provides the entry point for the smithers CLI.
package main

import (
	"fmt"
	"os"

	"github.com/evmts/smithers/cmd/smithers/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
