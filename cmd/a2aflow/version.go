package main

import (
	"fmt"
	goruntime "runtime"

	"github.com/spf13/cobra"

	"github.com/hupe1980/a2aflow"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "a2aflow %s (%s %s/%s)\n", a2aflow.Version, goruntime.Version(), goruntime.GOOS, goruntime.GOARCH)
	},
}
