package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cwbudde/nlmdenoise/internal/nlm"
)

var version = "0.1.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("nlmdenoise version %s (patch kernel: %s)\n", version, nlm.ActivePatchBackend)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
