package cli

import (
	"github.com/spf13/cobra"
)

var version = "0.1.0"

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:     "perfgate",
	Short:   "Browser performance testing with budget enforcement",
	Version: version,
	Long: `Perfgate drives a browser over its debug protocol, measures a page
under emulated CPU and network conditions, and fails the run when the
measurements exceed a declared performance budget.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() error {
	return RootCmd.Execute()
}

func init() {
	RootCmd.AddCommand(runCmd)
	RootCmd.AddCommand(presetsCmd)
}
