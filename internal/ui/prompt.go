package ui

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/manifoldco/promptui"

	"github.com/substantialcattle5/stillsuit/internal/chunk"
	"github.com/substantialcattle5/stillsuit/internal/config"
	"github.com/substantialcattle5/stillsuit/internal/constants"
)

// Menu choices
const (
	MenuBackup  = "Backup"
	MenuRestore = "Restore"
	MenuRecover = "Recover interrupted backup"
	MenuConfig  = "Show configuration"
	MenuExit    = "Exit"
)

// ErrCancelled is returned when the user declines a confirmation
var ErrCancelled = errors.New("operation cancelled")

// SelectAction shows the main menu and returns the chosen entry
func SelectAction() (string, error) {
	menu := promptui.Select{
		Label: "What would you like to do",
		Items: []string{MenuBackup, MenuRestore, MenuRecover, MenuConfig, MenuExit},
		Templates: &promptui.SelectTemplates{
			Selected: "▸ {{ . | green }}",
			Active:   "▸ {{ . }}",
			Inactive: "  {{ . }}",
			Details: `
{{ "Details:" | faint }}
{{ if eq . "Backup" }}Archive the source directory into backup.zip
{{ else if eq . "Restore" }}Extract backup.zip into the restore directory
{{ else if eq . "Recover interrupted backup" }}Merge temporary chunk archives left by an interrupted run
{{ else if eq . "Show configuration" }}Print the effective configuration{{ end }}
`,
		},
	}
	_, choice, err := menu.Run()
	if err != nil {
		if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
			return MenuExit, nil
		}
		return "", fmt.Errorf("prompt failed: %w", err)
	}
	return choice, nil
}

// PromptForConfig walks the user through the configuration file, starting from base
func PromptForConfig(base *config.Config, out io.Writer) (*config.Config, error) {
	cfg := *base

	fmt.Fprintln(out, "📦 Setting up stillsuit")
	fmt.Fprintln(out, "=======================")

	fmt.Fprintln(out, "🔹 Directories")
	if err := promptDirectories(&cfg); err != nil {
		return nil, err
	}

	fmt.Fprintln(out, "\n🔹 Archive settings")
	if err := promptArchiveConfig(&cfg); err != nil {
		return nil, err
	}

	displayConfigSummary(&cfg, out)

	confirmPrompt := promptui.Prompt{
		Label:     "Save these settings",
		IsConfirm: true,
		Default:   "y",
	}
	if _, err := confirmPrompt.Run(); err != nil {
		if errors.Is(err, promptui.ErrAbort) {
			return nil, ErrCancelled
		}
		return nil, fmt.Errorf("prompt failed: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func promptDirectories(cfg *config.Config) error {
	fields := []struct {
		label string
		value *string
	}{
		{"Source directory", &cfg.SourceDir},
		{"Backup directory", &cfg.BackupDir},
		{"Restore directory", &cfg.RestoreDir},
	}
	for _, f := range fields {
		p := promptui.Prompt{
			Label:     f.label,
			Default:   *f.value,
			AllowEdit: true,
			Validate:  notEmpty,
		}
		result, err := p.Run()
		if err != nil {
			return fmt.Errorf("prompt failed: %w", err)
		}
		*f.value = strings.TrimSpace(result)
	}
	return nil
}

func promptArchiveConfig(cfg *config.Config) error {
	var err error
	if cfg.Compression, err = promptBool("Compress entries (deflate)", cfg.Compression); err != nil {
		return err
	}
	if cfg.Encryption, err = promptBool("Encrypt entries (AES-256)", cfg.Encryption); err != nil {
		return err
	}
	if cfg.IntegrityCheck, err = promptBool("Record and verify file hashes", cfg.IntegrityCheck); err != nil {
		return err
	}

	if cfg.IntegrityCheck {
		hashAlgorithmPrompt := promptui.Select{
			Label: "Hash algorithm",
			Items: []string{constants.HashAlgorithmSHA256, constants.HashAlgorithmBLAKE3, constants.HashAlgorithmSHA512, constants.HashAlgorithmSHA1, constants.HashAlgorithmMD5},
			Templates: &promptui.SelectTemplates{
				Selected: "Hash algorithm: {{ . }}",
				Active:   "▸ {{ . }}",
				Inactive: "  {{ . }}",
				Details: `
{{ "Details:" | faint }}
{{ if eq . "sha256" }}SHA-256 (recommended default)
{{ else if eq . "blake3" }}BLAKE3 (modern and very fast)
{{ else if eq . "sha512" }}SHA-512 (longer digest, slightly slower)
{{ else if eq . "sha1" }}SHA-1 (legacy, not collision resistant)
{{ else if eq . "md5" }}MD5 (legacy, detects accidental corruption only){{ end }}
`,
			},
		}
		_, hashResult, err := hashAlgorithmPrompt.Run()
		if err != nil {
			return fmt.Errorf("prompt failed: %w", err)
		}
		cfg.HashAlgorithm = chunk.NormalizeAlgorithm(hashResult)
	}

	sizePrompt := promptui.Prompt{
		Label:   "Files per chunk",
		Default: strconv.Itoa(cfg.ChunkSize),
		Validate: func(input string) error {
			n, err := strconv.Atoi(strings.TrimSpace(input))
			if err != nil || n < 1 {
				return errors.New("chunk size must be a positive integer")
			}
			return nil
		},
	}
	sizeResult, err := sizePrompt.Run()
	if err != nil {
		return fmt.Errorf("prompt failed: %w", err)
	}
	cfg.ChunkSize, _ = strconv.Atoi(strings.TrimSpace(sizeResult))
	return nil
}

func promptBool(label string, current bool) (bool, error) {
	def := "n"
	if current {
		def = "y"
	}
	p := promptui.Prompt{Label: label, IsConfirm: true, Default: def}
	_, err := p.Run()
	if err == nil {
		return true, nil
	}
	if errors.Is(err, promptui.ErrAbort) {
		return false, nil
	}
	return false, fmt.Errorf("prompt failed: %w", err)
}

func notEmpty(input string) error {
	if strings.TrimSpace(input) == "" {
		return errors.New("value must not be empty")
	}
	return nil
}

func displayConfigSummary(cfg *config.Config, out io.Writer) {
	fmt.Fprintln(out, "\n📋 Configuration Summary")
	fmt.Fprintln(out, "========================")
	fmt.Fprintf(out, "Source:      %s\n", cfg.SourceDir)
	fmt.Fprintf(out, "Backup:      %s\n", cfg.BackupDir)
	fmt.Fprintf(out, "Restore:     %s\n", cfg.RestoreDir)
	fmt.Fprintf(out, "Compression: %t\n", cfg.Compression)
	fmt.Fprintf(out, "Encryption:  %t", cfg.Encryption)
	if cfg.Encryption {
		fmt.Fprintf(out, " (%s)", cfg.KDF)
	}
	fmt.Fprintln(out)
	if cfg.IntegrityCheck {
		fmt.Fprintf(out, "Integrity:   %s\n", cfg.HashAlgorithm)
	} else {
		fmt.Fprintln(out, "Integrity:   off")
	}
	fmt.Fprintf(out, "Chunk size:  %d files\n", cfg.ChunkSize)
	fmt.Fprintln(out)
}
