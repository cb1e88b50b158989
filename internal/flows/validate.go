package flows

import (
	"net/mail"
	"strings"

	"github.com/MrEthical07/authcore/session"
)

const (
	maxEmailLength    = 254
	maxPasswordLength = 1024
	minOtpLength      = 4
	maxOtpLength      = 8
)

// ValidateEmail rejects addresses that are empty or not a bare addr-spec.
func ValidateEmail(email string) *session.AuthError {
	email = strings.TrimSpace(email)
	if email == "" {
		return session.Validationf("email", "email is required")
	}
	if len(email) > maxEmailLength {
		return session.Validationf("email", "email is too long")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndexByte(email, '@')+1:], ".") {
		return session.Validationf("email", "email is invalid")
	}
	return nil
}

// ValidatePassword only checks presence and size; strength rules belong to the backend.
func ValidatePassword(password string) *session.AuthError {
	if password == "" {
		return session.Validationf("password", "password is required")
	}
	if len(password) > maxPasswordLength {
		return session.Validationf("password", "password is too long")
	}
	return nil
}

// ValidateOtpCode requires 4 to 8 digits.
func ValidateOtpCode(code string) *session.AuthError {
	code = strings.TrimSpace(code)
	if len(code) < minOtpLength || len(code) > maxOtpLength {
		return session.Validationf("code", "code must be %d to %d digits", minOtpLength, maxOtpLength)
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return session.Validationf("code", "code must be numeric")
		}
	}
	return nil
}
