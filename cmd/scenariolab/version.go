package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is overridden at build time via -ldflags.
var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the scenariolab version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("scenariolab", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
