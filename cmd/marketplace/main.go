// Command marketplace runs the listing marketplace API and drives the listing
// workflows from the command line.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
