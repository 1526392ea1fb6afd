package audit

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/substantialcattle5/stillsuit/testutil"
)

func line(ts time.Time, activity, status string) string {
	return fmt.Sprintf(`{"level":"INFO","timestamp":%q,"details":"d","activityType":%q,"status":%q}`+"\n",
		ts.Format(time.RFC3339), activity, status)
}

func TestLoggerWritesRecords(t *testing.T) {
	path := filepath.Join(testutil.TempDir(t, "audit"), "logs", "audit.log")
	l, err := Open(path, true)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	l.Log(ActivityBackup, StatusStarted, "backup of /src", LevelInfo)
	l.Log(ActivityFile, StatusFailure, "a.txt: permission denied", LevelError)
	l.Log(ActivityBackup, StatusSuccess, "2 files", LevelInfo)
	l.Log(ActivityRestore, StatusSuccess, "debug detail", LevelDebug)
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	all, err := Search(path, Query{})
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("got %d records, want 4", len(all))
	}
	if all[1].Level != "ERROR" || all[1].ActivityType != ActivityFile || all[1].Details != "a.txt: permission denied" {
		t.Errorf("unexpected record %+v", all[1])
	}
	if all[3].Level != "DEBUG" {
		t.Errorf("debug record level = %s", all[3].Level)
	}
	if time.Since(all[0].Timestamp) > time.Minute {
		t.Errorf("timestamp %v not recent", all[0].Timestamp)
	}

	backups, _ := ByActivityType(path, ActivityBackup)
	if len(backups) != 2 {
		t.Errorf("ByActivityType() = %d records, want 2", len(backups))
	}
	failures, _ := ByStatus(path, StatusFailure)
	if len(failures) != 1 {
		t.Errorf("ByStatus() = %d records, want 1", len(failures))
	}
}

func TestDisabledLogger(t *testing.T) {
	dir := testutil.TempDir(t, "disabled")
	path := filepath.Join(dir, "audit.log")
	l, err := Open(path, false)
	if err != nil {
		t.Fatal(err)
	}
	l.Log(ActivityBackup, StatusSuccess, "ignored", LevelInfo)
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
	testutil.AssertFileNotExists(t, path)

	var nilLogger *Logger
	nilLogger.Log(ActivityBackup, StatusSuccess, "ignored", LevelInfo)
	if nilLogger.Enabled() {
		t.Error("nil logger reports enabled")
	}
}

func TestByDateRange(t *testing.T) {
	path := filepath.Join(testutil.TempDir(t, "range"), "audit.log")
	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	content := line(base, "backup", "success") +
		"not json\n" +
		line(base.Add(24*time.Hour), "restore", "failure") +
		line(base.Add(48*time.Hour), "backup", "failure")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	got, err := ByDateRange(path, base.Add(time.Hour), base.Add(48*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ActivityType != "restore" {
		t.Errorf("ByDateRange() = %+v", got)
	}

	got, _ = Search(path, Query{ActivityType: "backup", Status: "failure"})
	if len(got) != 1 || !got[0].Timestamp.Equal(base.Add(48*time.Hour)) {
		t.Errorf("combined query = %+v", got)
	}

	if _, err := Search(filepath.Join(filepath.Dir(path), "missing.log"), Query{}); err == nil {
		t.Error("missing log should be an error")
	}
}

func TestRotation(t *testing.T) {
	now := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		live       string
		old        string
		wantLive   string
		wantOld    string
		oldRemoved bool
	}{
		{
			name:     "recent log untouched",
			live:     line(now.Add(-10*24*time.Hour), "backup", "success"),
			wantLive: "backup",
		},
		{
			name:     "stale log rotated",
			live:     line(now.Add(-100*24*time.Hour), "restore", "success"),
			old:      line(now.Add(-120*24*time.Hour), "backup", "success"),
			wantLive: "",
			wantOld:  "restore",
		},
		{
			name:       "expired old log purged",
			live:       line(now.Add(-1*time.Hour), "backup", "success"),
			old:        line(now.Add(-200*24*time.Hour), "backup", "success"),
			wantLive:   "backup",
			oldRemoved: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := testutil.TempDir(t, "rotate")
			path := filepath.Join(dir, "audit.log")
			if err := os.WriteFile(path, []byte(tt.live), 0o600); err != nil {
				t.Fatal(err)
			}
			if tt.old != "" {
				if err := os.WriteFile(path+".old", []byte(tt.old), 0o600); err != nil {
					t.Fatal(err)
				}
			}

			l, err := openAt(path, now)
			if err != nil {
				t.Fatalf("openAt() error: %v", err)
			}
			_ = l.Close()

			live, _ := os.ReadFile(path)
			if tt.wantLive == "" && len(live) != 0 {
				t.Errorf("live log should be empty, got %q", live)
			}
			if tt.wantLive != "" && !strings.Contains(string(live), tt.wantLive) {
				t.Errorf("live log = %q, want it to contain %q", live, tt.wantLive)
			}

			if tt.oldRemoved {
				testutil.AssertFileNotExists(t, path+".old")
				return
			}
			if tt.wantOld != "" {
				testutil.AssertFileContains(t, path+".old", tt.wantOld)
				// the earlier .old content is kept ahead of the appended records
				testutil.AssertFileContains(t, path+".old", tt.old)
			}
		})
	}
}
