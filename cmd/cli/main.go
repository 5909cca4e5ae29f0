// Package main is the entry point for the pgadvisor CLI binary.
package main

import (
	"os"

	cli "pg-advisor/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
