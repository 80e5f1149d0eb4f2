package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Set at build time with -ldflags "-X main.version=...".
var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the flakewatch version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("flakewatch %s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
