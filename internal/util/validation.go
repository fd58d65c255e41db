package util

import (
	"net/mail"
)

const maxEmailLength = 254

// IsValidEmail accepts a bare address such as "a@example.com". Display
// names and angle brackets are rejected so the stored value matches what
// users type at sign-in.
func IsValidEmail(s string) bool {
	if s == "" || len(s) > maxEmailLength {
		return false
	}
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}

func IsValidEnum(value string, validValues []string) bool {
	if value == "" {
		return true
	}
	for _, v := range validValues {
		if value == v {
			return true
		}
	}
	return false
}
