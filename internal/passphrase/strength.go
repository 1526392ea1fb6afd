// Package passphrase rates backup passwords. Ratings are advisory: any
// non-empty password is accepted, weak ones only produce warnings.
package passphrase

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/nbutton23/zxcvbn-go"
)

// ErrEmpty is returned for an empty password.
var ErrEmpty = errors.New("password must not be empty")

// Assessment combines simple composition rules with zxcvbn's estimate
type Assessment struct {
	Strength  string
	Score     int // zxcvbn score, 0-4
	CrackTime string
	IsCommon  bool
	Warnings  []string
}

// Weak reports whether the password deserves a warning
func (a Assessment) Weak() bool {
	return len(a.Warnings) > 0
}

// Check rejects unusable passwords. Everything else is allowed.
func Check(password string) error {
	if password == "" {
		return ErrEmpty
	}
	return nil
}

// Assess rates password. userInputs are words (paths, user names) that make
// a password easier to guess when it contains them.
func Assess(password string, userInputs ...string) Assessment {
	var a Assessment

	// Composition first; zxcvbn only runs on passwords long enough to matter
	a.Warnings = append(a.Warnings, compositionWarnings(password)...)

	if len(password) >= 8 {
		z := zxcvbn.PasswordStrength(password, userInputs)
		a.Score = z.Score
		a.CrackTime = formatCrackTime(z.CrackTimeDisplay)
		if z.Score <= 1 {
			a.IsCommon = true
			a.Warnings = append(a.Warnings, "this password is predictable or commonly used")
		}
	}

	switch {
	case len(password) < 8:
		a.Strength = "Very Weak"
	case a.Score >= 3 && len(a.Warnings) == 0:
		a.Strength = "Strong"
	case a.Score >= 2:
		a.Strength = "Good"
	default:
		a.Strength = "Weak"
	}
	return a
}

// Message renders the warnings for display, empty when there are none
func Message(a Assessment) string {
	if len(a.Warnings) == 0 {
		return ""
	}
	if len(a.Warnings) == 1 {
		return fmt.Sprintf("Weak password (%s): %s", a.Strength, a.Warnings[0])
	}
	return fmt.Sprintf("Weak password (%s):\n• %s", a.Strength, strings.Join(a.Warnings, "\n• "))
}

func compositionWarnings(password string) []string {
	var warnings []string
	if len(password) < 12 {
		warnings = append(warnings, "shorter than 12 characters")
	}

	hasUpper, hasLower, hasDigit, hasSpecial := false, false, false, false
	for _, char := range password {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsDigit(char):
			hasDigit = true
		case unicode.IsPunct(char) || unicode.IsSymbol(char) || unicode.IsSpace(char):
			hasSpecial = true
		}
	}

	var missing []string
	if !hasUpper {
		missing = append(missing, "uppercase letters")
	}
	if !hasLower {
		missing = append(missing, "lowercase letters")
	}
	if !hasDigit {
		missing = append(missing, "digits")
	}
	if !hasSpecial {
		missing = append(missing, "symbols")
	}
	if len(missing) > 0 {
		warnings = append(warnings, "no "+strings.Join(missing, ", no "))
	}
	return warnings
}

func formatCrackTime(crackTime string) string {
	if crackTime == "" {
		return "unknown"
	}
	return crackTime
}
