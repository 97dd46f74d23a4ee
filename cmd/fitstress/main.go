package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:           "fitstress",
		Short:         "Load-generation and consistency-verification harness for the fitbod API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newStressCmd(), newSetupUsersCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
