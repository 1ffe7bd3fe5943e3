package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration and workflows",
	Long: `Load the configuration and every workflow file, then check that all task
types named by the manifest and the workflows are registered.`,
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, _ []string) error {
	rt, err := loadRuntime(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	if err := rt.app.Validate(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "task types: %v\n", rt.app.Tasks().Tags())
	for _, route := range rt.app.Workflows().Routes() {
		fmt.Fprintf(out, "%-32s %s (%d tasks)\n", route.Path, route.Definition.Name, len(route.Definition.Tasks))
	}
	fmt.Fprintln(out, "configuration is valid")

	return nil
}
