// Package main is the entry point for the reportctl CLI, which runs the report
// pipeline over local template and entry files.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
