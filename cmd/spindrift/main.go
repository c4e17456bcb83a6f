// Package main is the entry point for spindrift CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"spindrift/pkg/version"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "spindrift",
	Short: "spindrift - Telegram bot with per-user settings",
	Long: `spindrift runs a Telegram bot whose commands read per-user settings
stored in SQLite. Users change their settings with /set and list them with /params.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.GetFullVersion())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(paramsCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
