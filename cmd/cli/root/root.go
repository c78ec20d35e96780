package root

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Exported RootCmd
var RootCmd = &cobra.Command{
	Use:   "ledgerctl",
	Short: "Audit Ledger CLI",
	Long:  "Command line interface for the tamper-evident audit ledger API",
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// GetRoot returns the root command for registration.
func GetRoot() *cobra.Command {
	return RootCmd
}
