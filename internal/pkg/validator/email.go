package validator

import (
	"errors"
	"regexp"
	"strings"
)

var domainPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?(\.[a-z0-9]([a-z0-9-]*[a-z0-9])?)*$`)

func IsValidEmail(email string) error {
	parts := strings.Split(email, "@")
	if len(parts) != 2 || parts[0] == "" {
		return errors.New("invalid email format")
	}

	domain := strings.ToLower(parts[1])
	if !strings.Contains(domain, ".") || !domainPattern.MatchString(domain) {
		return errors.New("invalid email domain")
	}

	return nil
}

func ValidatePassword(password string) error {
	if len(password) < 8 {
		return errors.New("password must be at least 8 characters")
	}
	return nil
}
