/*
Copyright © 2025 SubstantialCattle5, nilaysharan.com
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/substantialcattle5/stillsuit/internal/config"
	"github.com/substantialcattle5/stillsuit/internal/ui"
	"github.com/substantialcattle5/stillsuit/util"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or create the configuration file",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "# %s\n", configPath(cmd))
		return config.Print(cfg, cmd.OutOrStdout())
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the configuration file interactively",
	Long: `Create the configuration file.

Without --defaults you are asked for the directories and archive settings.
An existing file is only replaced after confirmation or with --force.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath(cmd)
		force, _ := cmd.Flags().GetBool("force")
		useDefaults, _ := cmd.Flags().GetBool("defaults")

		if _, err := os.Stat(path); err == nil && !force {
			ok, err := util.Confirm(fmt.Sprintf("%s already exists. Overwrite?", path), cmd.InOrStdin(), cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if !ok {
				return ui.ErrCancelled
			}
		}

		cfg, err := loadConfig(cmd)
		if err != nil {
			cfg = config.Default()
		}
		if !useDefaults {
			cfg, err = ui.PromptForConfig(cfg, cmd.OutOrStdout())
			if err != nil {
				return err
			}
		}

		if err := config.Save(cfg, path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✅ Configuration saved to %s\n", path)
		return nil
	},
}

func init() {
	configInitCmd.Flags().Bool("force", false, "Overwrite an existing configuration file")
	configInitCmd.Flags().Bool("defaults", false, "Write the default configuration without prompting")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}
