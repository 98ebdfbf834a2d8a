package workshop

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// MinWorkshops is the smallest registry that still lets a registrant pick
// three distinct preferences.
const MinWorkshops = 3

// HashCost is the bcrypt cost used by HashPassword.
const HashCost = 12

// Domain errors
var (
	ErrEmptyCode        = errors.New("workshop code cannot be empty")
	ErrEmptyName        = errors.New("workshop name cannot be empty")
	ErrInvalidHash      = errors.New("workshop password_hash must be a bcrypt hash")
	ErrDuplicateCode    = errors.New("workshop code is defined twice")
	ErrTooFewWorkshops  = errors.New("registry needs at least three workshops")
	ErrUnknownWorkshop  = errors.New("unknown workshop")
	ErrWrongPassword    = errors.New("incorrect password")
	ErrEmptyPassword    = errors.New("password cannot be empty")
	ErrPasswordTooShort = errors.New("password must be at least 8 characters")
)

// Workshop is one entry of the deploy-time registry.
type Workshop struct {
	Code         string
	Name         string
	Description  string // Markdown
	PasswordHash string
}

// Validate checks that the workshop is usable by the login gate.
// PRE: Workshop struct is populated from configuration
// POST: Returns nil if valid, error otherwise
// INVARIANT: PasswordHash is a bcrypt hash, never plaintext
func (w *Workshop) Validate() error {
	if strings.TrimSpace(w.Code) == "" {
		return ErrEmptyCode
	}
	if strings.TrimSpace(w.Name) == "" {
		return ErrEmptyName
	}
	if _, err := bcrypt.Cost([]byte(w.PasswordHash)); err != nil {
		return fmt.Errorf("%s: %w", w.Code, ErrInvalidHash)
	}
	return nil
}

// CheckPassword verifies a plaintext password against the stored hash.
// INVARIANT: Workshop fields are not mutated
func (w *Workshop) CheckPassword(plaintext string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(w.PasswordHash), []byte(plaintext)); err != nil {
		return ErrWrongPassword
	}
	return nil
}

// HashPassword produces the registry hash for an operator password.
// PRE: plaintext is at least 8 characters
// POST: Returns a bcrypt hash with HashCost
func HashPassword(plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrEmptyPassword
	}
	if len(plaintext) < 8 {
		return "", ErrPasswordTooShort
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), HashCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
