package cli

import (
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var rootCmd = &cobra.Command{
	Use:   "interpose",
	Short: "Method interception proxies for Go types",
	Long: "Generates typed interception proxies for Go types, inspects the members a proxy\n" +
		"would intercept, and verifies the audit logs written by the audit handler.",
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
