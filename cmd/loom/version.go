package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Populated by the release build via -ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("loom %s (%s) %s/%s\n", version, commit, runtime.GOOS, runtime.GOARCH)
	},
}
