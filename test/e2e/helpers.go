// Package e2e provides end-to-end testing utilities for the stillsuit CLI
package e2e

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// TestWorkspace is a temporary directory holding a source tree, a backup
// directory, a restore directory and the configuration file pointing at them
type TestWorkspace struct {
	Root       string
	Source     string
	Backup     string
	Restore    string
	ConfigPath string
	binaryPath string
}

// NewTestWorkspace creates the directories and a configuration file. extraConfig
// is appended to the generated YAML.
func NewTestWorkspace(t *testing.T, extraConfig string) *TestWorkspace {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping end-to-end test in short mode")
	}

	root := t.TempDir()
	ws := &TestWorkspace{
		Root:       root,
		Source:     filepath.Join(root, "source"),
		Backup:     filepath.Join(root, "backup"),
		Restore:    filepath.Join(root, "restore"),
		ConfigPath: filepath.Join(root, "stillsuit.yaml"),
		binaryPath: ensureBinary(t),
	}
	if err := os.MkdirAll(ws.Source, 0o755); err != nil {
		t.Fatalf("Failed to create source directory: %v", err)
	}

	config := "source_dir: " + ws.Source + "\n" +
		"backup_dir: " + ws.Backup + "\n" +
		"restore_dir: " + ws.Restore + "\n" +
		"chunk_size: 3\n" +
		"logging:\n  enabled: true\n  file: " + filepath.Join(root, "audit.log") + "\n" +
		extraConfig
	if err := os.WriteFile(ws.ConfigPath, []byte(config), 0o600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return ws
}

// ensureBinary builds the stillsuit binary if it doesn't exist and returns its path
func ensureBinary(t *testing.T) string {
	t.Helper()

	projectRoot := getProjectRoot(t)
	binaryPath := filepath.Join(projectRoot, "stillsuit")

	if _, err := os.Stat(binaryPath); err == nil {
		return binaryPath
	}

	t.Logf("Building stillsuit binary...")
	cmd := exec.Command("go", "build", "-o", binaryPath, ".")
	cmd.Dir = projectRoot
	output, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("Failed to build stillsuit binary: %v\nOutput: %s", err, output)
	}
	return binaryPath
}

// getProjectRoot finds the project root directory
func getProjectRoot(t *testing.T) string {
	t.Helper()

	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("Could not find project root (no go.mod found)")
		}
		dir = parent
	}
}

// Backup runs `stillsuit backup` with the password on stdin
func (w *TestWorkspace) Backup(t *testing.T, password string, extraArgs ...string) (string, string, error) {
	t.Helper()
	args := append([]string{"backup", "--password-stdin"}, extraArgs...)
	return w.RunCommand(t, password+"\n", args...)
}

// Restore runs `stillsuit restore` with the password on stdin
func (w *TestWorkspace) Restore(t *testing.T, password string, extraArgs ...string) (string, string, error) {
	t.Helper()
	args := append([]string{"restore", "--password-stdin"}, extraArgs...)
	return w.RunCommand(t, password+"\n", args...)
}

// RunCommand runs a stillsuit command against the workspace configuration
func (w *TestWorkspace) RunCommand(t *testing.T, stdin string, args ...string) (stdout, stderr string, err error) {
	t.Helper()

	full := append([]string{"--config", w.ConfigPath}, args...)
	cmd := exec.Command(w.binaryPath, full...)
	cmd.Dir = w.Root
	cmd.Stdin = strings.NewReader(stdin)
	cmd.Env = append(os.Environ(), "NO_COLOR=1")

	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	err = cmd.Run()
	stdout = outBuf.String()
	stderr = errBuf.String()

	if t.Failed() || testing.Verbose() {
		t.Logf("Command: stillsuit %s", strings.Join(full, " "))
		t.Logf("Exit Code: %v", err)
		if stdout != "" {
			t.Logf("Stdout:\n%s", stdout)
		}
		if stderr != "" {
			t.Logf("Stderr:\n%s", stderr)
		}
	}
	return stdout, stderr, err
}

// CreateFile creates a test file in the source tree
func (w *TestWorkspace) CreateFile(t *testing.T, relativePath, content string) string {
	t.Helper()

	fullPath := filepath.Join(w.Source, filepath.FromSlash(relativePath))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		t.Fatalf("Failed to create directories for %s: %v", relativePath, err)
	}
	if err := os.WriteFile(fullPath, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to create file %s: %v", relativePath, err)
	}
	return fullPath
}

// AssertOutputContains checks if output contains expected string
func AssertOutputContains(t *testing.T, output, expected, context string) {
	t.Helper()

	if !strings.Contains(output, expected) {
		t.Errorf("%s: output does not contain expected string.\nExpected substring: %q\nActual output:\n%s",
			context, expected, output)
	}
}

// AssertCommandSuccess checks if command succeeded
func AssertCommandSuccess(t *testing.T, err error, stderr, context string) {
	t.Helper()

	if err != nil {
		t.Fatalf("%s: command failed: %v\nStderr: %s", context, err, stderr)
	}
}

// AssertCommandFails checks if command failed as expected
func AssertCommandFails(t *testing.T, err error, context string) {
	t.Helper()

	if err == nil {
		t.Fatalf("%s: expected command to fail, but it succeeded", context)
	}
}
