package cmd

import (
	"fmt"
	"os"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/substantialcattle5/stillsuit/internal/config"
	"github.com/substantialcattle5/stillsuit/internal/ui"
)

// runMenu drives the interactive menu. Outside a terminal it prints help instead.
func runMenu(cmd *cobra.Command, args []string) error {
	if !term.IsTerminal(int(syscall.Stdin)) { // #nosec G115 - stdin descriptor fits in int
		return cmd.Help()
	}

	for {
		choice, err := ui.SelectAction()
		if err != nil {
			return err
		}
		if choice == ui.MenuExit {
			return nil
		}

		// Reload each time so edits to the file between actions are picked up
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		if err := runMenuAction(cmd, cfg, choice); err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		fmt.Fprintln(cmd.OutOrStdout())
	}
}

func runMenuAction(cmd *cobra.Command, cfg *config.Config, choice string) error {
	switch choice {
	case ui.MenuBackup:
		return runBackup(cmd, cfg)
	case ui.MenuRestore:
		return runRestore(cmd, cfg, "")
	case ui.MenuRecover:
		return runRecover(cmd, cfg, recoverOptions{})
	case ui.MenuConfig:
		fmt.Fprintf(cmd.OutOrStdout(), "# %s\n", configPath(cmd))
		return config.Print(cfg, cmd.OutOrStdout())
	default:
		return fmt.Errorf("unknown menu entry %q", choice)
	}
}
