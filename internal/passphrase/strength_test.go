package passphrase

import (
	"errors"
	"strings"
	"testing"
)

func TestCheck(t *testing.T) {
	if !errors.Is(Check(""), ErrEmpty) {
		t.Error("empty password should be rejected")
	}
	if err := Check("x"); err != nil {
		t.Errorf("short passwords are allowed, got %v", err)
	}
}

func TestAssess(t *testing.T) {
	tests := []struct {
		name         string
		password     string
		wantWeak     bool
		wantStrength string
		wantWarning  string
	}{
		{"very short", "abc", true, "Very Weak", "shorter than 12"},
		{"common password", "password1234", true, "", "predictable"},
		{"missing classes", "correcthorsebatterystaple", true, "", "no uppercase letters"},
		{"strong", "Tr0ub4dor&3-Xylophone-Quasar!", false, "Strong", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := Assess(tt.password)
			if a.Weak() != tt.wantWeak {
				t.Errorf("Weak() = %v, want %v (warnings %v)", a.Weak(), tt.wantWeak, a.Warnings)
			}
			if tt.wantStrength != "" && a.Strength != tt.wantStrength {
				t.Errorf("Strength = %s, want %s", a.Strength, tt.wantStrength)
			}
			msg := Message(a)
			if tt.wantWarning != "" && !strings.Contains(msg, tt.wantWarning) {
				t.Errorf("Message() = %q, want it to mention %q", msg, tt.wantWarning)
			}
			if !tt.wantWeak && msg != "" {
				t.Errorf("strong password produced message %q", msg)
			}
		})
	}
}

func TestAssessUserInputs(t *testing.T) {
	without := Assess("Stillsuit-Backups-2025")
	with := Assess("Stillsuit-Backups-2025", "stillsuit", "backups")
	if with.Score > without.Score {
		t.Errorf("user inputs should not raise the score: %d > %d", with.Score, without.Score)
	}
}
