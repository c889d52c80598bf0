package auth

import "unicode"

// PasswordStrength grades a candidate password.
type PasswordStrength string

const (
	PasswordInvalid PasswordStrength = "Invalid"
	PasswordWeak    PasswordStrength = "Weak"
	PasswordMedium  PasswordStrength = "Medium"
	PasswordStrong  PasswordStrength = "Strong"
)

// MinPasswordLength is the shortest password accepted at signup or reset.
const MinPasswordLength = 8

// EvaluatePassword counts five criteria (length, upper, lower, digit, special).
// Passwords below the minimum length are always Invalid.
func EvaluatePassword(password string) PasswordStrength {
	if len([]rune(password)) < MinPasswordLength {
		return PasswordInvalid
	}

	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			special = true
		}
	}

	score := 1
	for _, ok := range []bool{upper, lower, digit, special} {
		if ok {
			score++
		}
	}

	switch {
	case score == 5:
		return PasswordStrong
	case score >= 3:
		return PasswordMedium
	case score >= 2:
		return PasswordWeak
	default:
		return PasswordInvalid
	}
}

// Acceptable reports whether the strength is good enough for a new password.
func (p PasswordStrength) Acceptable() bool {
	return p == PasswordMedium || p == PasswordStrong
}
