package password

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// Policy is the strength gate applied before any password is hashed.
// Length is measured in bytes, matching what the hasher consumes.
type Policy struct {
	// MinLength is the minimum password length in bytes.
	MinLength int
	// MaxLength bounds pathological inputs before they reach argon2.
	// Zero means no upper bound.
	MaxLength int
	// RequireLetter demands at least one Unicode letter.
	RequireLetter bool
	// RequireDigit demands at least one Unicode digit.
	RequireDigit bool
	// Denylist rejects exact matches case-insensitively. Meant for the
	// organization's name and other trivially guessable values, not as a
	// breach corpus.
	Denylist []string
}

// DefaultPolicy returns the production strength policy.
func DefaultPolicy() Policy {
	return Policy{
		MinLength:     10,
		MaxLength:     512,
		RequireLetter: true,
		RequireDigit:  true,
	}
}

// Validate checks the policy for internal consistency.
func (p Policy) Validate() error {
	if p.MinLength < 8 {
		return errors.New("password minimum length must be >= 8")
	}
	if p.MaxLength != 0 && p.MaxLength < p.MinLength {
		return errors.New("password maximum length below minimum")
	}
	return nil
}

// Check reports why password fails the policy, or nil when it passes. The
// returned message is safe to surface to clients.
func (p Policy) Check(password string) error {
	if len(password) < p.MinLength {
		return fmt.Errorf("password must be at least %d bytes", p.MinLength)
	}
	if p.MaxLength > 0 && len(password) > p.MaxLength {
		return fmt.Errorf("password must be at most %d bytes", p.MaxLength)
	}

	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if p.RequireLetter && !hasLetter {
		return errors.New("password must contain a letter")
	}
	if p.RequireDigit && !hasDigit {
		return errors.New("password must contain a digit")
	}

	for _, denied := range p.Denylist {
		if strings.EqualFold(password, denied) {
			return errors.New("password is too common")
		}
	}

	return nil
}
