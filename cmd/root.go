/*
Copyright © 2025 SubstantialCattle5, nilaysharan.com
*/
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "stillsuit",
	Short: "Stillsuit - chunked, encrypted directory backups",
	Long: `Stillsuit backs up a directory tree into a single zip archive and restores it.

Files are archived in parallel chunks, optionally compressed and encrypted
with AES-256, and recorded in an integrity manifest that restore verifies
before writing anything back.

Run without arguments in a terminal to open the interactive menu.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runMenu,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (default is $HOME/.stillsuit.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "Disable progress bars and reduce output")
}
