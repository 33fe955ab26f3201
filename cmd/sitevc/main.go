package main

import (
	"fmt"
	"os"

	"sitevc.dev/sitevc/internal/cli"
	"sitevc.dev/sitevc/internal/output"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := cli.NewRootCmd(version, commit, date)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, output.ColorRed("error: ")+err.Error())
		os.Exit(1)
	}
}
