package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "sentinel",
	Short: "Verification gate for agent-proposed financial actions",
	Long:  "Gates agent-proposed financial actions behind policy verification and\nuser confirmation. Transfers are proven against a fixed invariant set and\nhalt until the user confirms; every attempt lands in a tamper-evident audit log.",
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
