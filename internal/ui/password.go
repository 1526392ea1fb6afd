/*
Copyright © 2025 SubstantialCattle5, nilaysharan.com
*/
package ui

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/substantialcattle5/stillsuit/internal/passphrase"
)

// PasswordEnv is consulted after the stdin and file flags
const PasswordEnv = "STILLSUIT_PASSWORD"

// ErrNoPassword is returned when no source supplied a password and no terminal is attached
var ErrNoPassword = errors.New("password required but not provided (use --password-stdin, --password-file or " + PasswordEnv + ")")

// PasswordRequest describes what the password is for
type PasswordRequest struct {
	// Confirm asks twice when prompting, for passwords that create new key material
	Confirm bool
	// Assess prints a warning for weak passwords
	Assess bool
}

// readPasswordFromReader reads one line (useful for piping)
func readPasswordFromReader(r io.Reader) (string, error) {
	reader := bufio.NewReader(r)
	password, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read password from stdin: %w", err)
	}
	return strings.TrimRight(password, "\r\n"), nil
}

// readPasswordFromFile reads a password file; 0600 permissions are recommended
func readPasswordFromFile(filePath string, warn io.Writer) (string, error) {
	fileInfo, err := os.Stat(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to access password file: %w", err)
	}
	if fileInfo.IsDir() {
		return "", fmt.Errorf("password file %s is a directory", filePath)
	}

	// Warn if file permissions are too open (not strictly enforced, just a warning)
	if fileInfo.Mode().Perm()&0o077 != 0 {
		fmt.Fprintf(warn, "Warning: password file has overly permissive permissions (%v). Recommended: 0600\n", fileInfo.Mode().Perm())
	}

	content, err := os.ReadFile(filePath) // #nosec G304 - path is chosen by the user
	if err != nil {
		return "", fmt.Errorf("failed to read password file: %w", err)
	}

	password := strings.TrimSpace(string(content))
	if password == "" {
		return "", fmt.Errorf("password file is empty")
	}
	return password, nil
}

// GetPassword retrieves a password from, in order of preference: --password-stdin,
// --password-file, the STILLSUIT_PASSWORD environment variable, or an interactive prompt.
func GetPassword(cmd *cobra.Command, req PasswordRequest) (string, error) {
	password, err := passwordFromFlagsOrEnv(cmd)
	if err != nil {
		return "", err
	}

	if password == "" {
		interactive := false
		if cmd.Flags().Lookup("interactive") != nil {
			interactive, _ = cmd.Flags().GetBool("interactive")
		}
		if interactive {
			password, err = promptPassword(req.Confirm)
		} else {
			password, err = readPasswordFromTerminal(cmd.ErrOrStderr(), req.Confirm)
		}
		if err != nil {
			return "", err
		}
	}

	if err := passphrase.Check(password); err != nil {
		return "", err
	}
	if req.Assess {
		if msg := passphrase.Message(passphrase.Assess(password)); msg != "" {
			Warn(cmd.ErrOrStderr(), "%s\n", msg)
		}
	}
	return password, nil
}

func passwordFromFlagsOrEnv(cmd *cobra.Command) (string, error) {
	// Priority 1: --password-stdin
	if cmd.Flags().Lookup("password-stdin") != nil {
		if useStdin, _ := cmd.Flags().GetBool("password-stdin"); useStdin {
			return readPasswordFromReader(cmd.InOrStdin())
		}
	}

	// Priority 2: --password-file
	if cmd.Flags().Lookup("password-file") != nil {
		if file, _ := cmd.Flags().GetString("password-file"); file != "" {
			return readPasswordFromFile(file, cmd.ErrOrStderr())
		}
	}

	// Priority 3: environment
	return os.Getenv(PasswordEnv), nil
}

func readPasswordFromTerminal(out io.Writer, confirm bool) (string, error) {
	fd := int(syscall.Stdin) // #nosec G115 - stdin descriptor fits in int
	if !term.IsTerminal(fd) {
		return "", ErrNoPassword
	}

	fmt.Fprint(out, "Enter password: ")
	first, err := term.ReadPassword(fd)
	fmt.Fprintln(out) // Add newline after password input
	if err != nil {
		return "", fmt.Errorf("error reading password: %w", err)
	}

	if confirm {
		fmt.Fprint(out, "Confirm password: ")
		second, err := term.ReadPassword(fd)
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("error reading password confirmation: %w", err)
		}
		if string(first) != string(second) {
			return "", fmt.Errorf("passwords do not match")
		}
	}
	return string(first), nil
}

func promptPassword(confirm bool) (string, error) {
	passwordPrompt := promptui.Prompt{
		Label: "Password",
		Mask:  '*',
		Validate: func(input string) error {
			return passphrase.Check(input)
		},
	}
	entered, err := passwordPrompt.Run()
	if err != nil {
		return "", fmt.Errorf("failed to get password: %w", err)
	}

	if confirm {
		confirmPrompt := promptui.Prompt{
			Label: "Confirm password",
			Mask:  '*',
			Validate: func(input string) error {
				if input != entered {
					return fmt.Errorf("passwords do not match")
				}
				return nil
			},
		}
		if _, err := confirmPrompt.Run(); err != nil {
			return "", fmt.Errorf("password confirmation failed: %w", err)
		}
	}
	return entered, nil
}
