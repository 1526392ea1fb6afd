/*
Copyright © 2025 SubstantialCattle5, nilaysharan.com
*/
package ui

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func TestReadPasswordFromFile(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		permissions os.FileMode
		wantErr     bool
		wantWarning bool
		expected    string
		errContains string
	}{
		{
			name:        "valid password file with secure permissions",
			content:     "MySecureP@ssw0rd!",
			permissions: 0o600,
			expected:    "MySecureP@ssw0rd!",
		},
		{
			name:        "password with trailing newline",
			content:     "MySecureP@ssw0rd!\n",
			permissions: 0o600,
			expected:    "MySecureP@ssw0rd!",
		},
		{
			name:        "password with trailing spaces",
			content:     "MySecureP@ssw0rd!   \n",
			permissions: 0o600,
			expected:    "MySecureP@ssw0rd!",
		},
		{
			name:        "empty file",
			content:     "",
			permissions: 0o600,
			wantErr:     true,
			errContains: "empty",
		},
		{
			name:        "file with only whitespace",
			content:     "   \n  \n",
			permissions: 0o600,
			wantErr:     true,
			errContains: "empty",
		},
		{
			name:        "file with insecure permissions (warning only)",
			content:     "MySecureP@ssw0rd!",
			permissions: 0o644,
			wantWarning: true,
			expected:    "MySecureP@ssw0rd!",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpFile := filepath.Join(t.TempDir(), "password.txt")
			if err := os.WriteFile(tmpFile, []byte(tt.content), tt.permissions); err != nil {
				t.Fatalf("Failed to create test file: %v", err)
			}
			// WriteFile is subject to umask
			if err := os.Chmod(tmpFile, tt.permissions); err != nil {
				t.Fatal(err)
			}

			var warn bytes.Buffer
			result, err := readPasswordFromFile(tmpFile, &warn)

			if tt.wantErr {
				if err == nil {
					t.Error("Expected error but got none")
				} else if tt.errContains != "" && !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("Expected error to contain %q, got %q", tt.errContains, err.Error())
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if result != tt.expected {
				t.Errorf("Expected password %q, got %q", tt.expected, result)
			}
			if runtime.GOOS != "windows" {
				if got := strings.Contains(warn.String(), "permissive"); got != tt.wantWarning {
					t.Errorf("permission warning = %v, want %v (%q)", got, tt.wantWarning, warn.String())
				}
			}
		})
	}
}

func TestReadPasswordFromFileErrors(t *testing.T) {
	t.Run("nonexistent file", func(t *testing.T) {
		if _, err := readPasswordFromFile("/nonexistent/path/to/file", &bytes.Buffer{}); err == nil {
			t.Error("Expected error for nonexistent file")
		}
	})

	t.Run("directory instead of file", func(t *testing.T) {
		if _, err := readPasswordFromFile(t.TempDir(), &bytes.Buffer{}); err == nil {
			t.Error("Expected error when passing directory")
		}
	})
}

func newPasswordCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().Bool("password-stdin", false, "")
	cmd.Flags().String("password-file", "", "")
	return cmd
}

func TestGetPasswordSources(t *testing.T) {
	t.Run("stdin wins over env", func(t *testing.T) {
		t.Setenv(PasswordEnv, "from-env")
		cmd := newPasswordCommand()
		cmd.SetIn(strings.NewReader("from-stdin\n"))
		_ = cmd.Flags().Set("password-stdin", "true")

		got, err := GetPassword(cmd, PasswordRequest{})
		if err != nil || got != "from-stdin" {
			t.Fatalf("GetPassword() = %q, %v", got, err)
		}
	})

	t.Run("file wins over env", func(t *testing.T) {
		t.Setenv(PasswordEnv, "from-env")
		file := filepath.Join(t.TempDir(), "pw")
		if err := os.WriteFile(file, []byte("from-file\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		cmd := newPasswordCommand()
		cmd.SetErr(&bytes.Buffer{})
		_ = cmd.Flags().Set("password-file", file)

		got, err := GetPassword(cmd, PasswordRequest{})
		if err != nil || got != "from-file" {
			t.Fatalf("GetPassword() = %q, %v", got, err)
		}
	})

	t.Run("env", func(t *testing.T) {
		t.Setenv(PasswordEnv, "from-env")
		got, err := GetPassword(newPasswordCommand(), PasswordRequest{})
		if err != nil || got != "from-env" {
			t.Fatalf("GetPassword() = %q, %v", got, err)
		}
	})

	t.Run("empty stdin is rejected", func(t *testing.T) {
		cmd := newPasswordCommand()
		cmd.SetIn(strings.NewReader("\n"))
		_ = cmd.Flags().Set("password-stdin", "true")
		if _, err := GetPassword(cmd, PasswordRequest{}); err == nil {
			t.Fatal("expected an error for an empty password")
		}
	})
}

func TestGetPasswordWeakIsAdvisory(t *testing.T) {
	t.Setenv(PasswordEnv, "abc")
	var errOut bytes.Buffer
	cmd := newPasswordCommand()
	cmd.SetErr(&errOut)

	got, err := GetPassword(cmd, PasswordRequest{Assess: true})
	if err != nil {
		t.Fatalf("weak passwords must be accepted: %v", err)
	}
	if got != "abc" {
		t.Errorf("GetPassword() = %q", got)
	}
	if !strings.Contains(errOut.String(), "Weak password") {
		t.Errorf("expected a weak password warning, got %q", errOut.String())
	}
}
