package account

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

var (
	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	phoneRegex = regexp.MustCompile(`^\+?[0-9]{7,15}$`)
)

const minPasswordLength = 6

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func ValidEmail(email string) bool {
	return emailRegex.MatchString(email)
}

func ValidPhone(phone string) bool {
	clean := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) || r == '+' {
			return r
		}
		return -1
	}, phone)
	return phoneRegex.MatchString(clean)
}

func ValidNamePart(name string) bool {
	if len([]rune(name)) < 2 {
		return false
	}
	for _, r := range name {
		if !unicode.IsLetter(r) && r != '-' && r != ' ' && r != '\'' {
			return false
		}
	}
	return true
}

// validate checks the fields shared by every account kind.
func (n NewUser) validate() error {
	switch {
	case !ValidEmail(n.Email):
		return fmt.Errorf("email %q: %w", n.Email, ErrInvalidInput)
	case len(n.Password) < minPasswordLength:
		return fmt.Errorf("password shorter than %d characters: %w", minPasswordLength, ErrInvalidInput)
	case !ValidNamePart(n.Name):
		return fmt.Errorf("name %q: %w", n.Name, ErrInvalidInput)
	case !ValidNamePart(n.Surname):
		return fmt.Errorf("surname %q: %w", n.Surname, ErrInvalidInput)
	case n.Phone != "" && !ValidPhone(n.Phone):
		return fmt.Errorf("phone %q: %w", n.Phone, ErrInvalidInput)
	}
	return nil
}
