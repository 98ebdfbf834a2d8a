package participant

import (
	"errors"
	"strings"
	"time"
)

// Status constants for the operator workflow. Any status may follow any other.
const (
	StatusPending   = "pending"
	StatusContacted = "contacted"
	StatusScheduled = "scheduled"
	StatusRejected  = "rejected"
)

// Statuses lists every valid status in display order.
var Statuses = []string{StatusPending, StatusContacted, StatusScheduled, StatusRejected}

// Domain errors
var (
	ErrNotFound            = errors.New("participant not found")
	ErrDuplicateEmail      = errors.New("email is already registered")
	ErrInvalidStatus       = errors.New("status must be one of: pending, contacted, scheduled, rejected")
	ErrDuplicatePreference = errors.New("preferences must be three different workshops")
	ErrEmptyEmail          = errors.New("participant email cannot be empty")
	ErrEmptyName           = errors.New("participant name cannot be empty")
)

// Participant is one registrant row.
type Participant struct {
	ID               string
	Name             string
	Email            string
	Phone            string
	University       string
	Faculty          string
	Level            string
	FirstPreference  string
	SecondPreference string
	ThirdPreference  string
	TechSkills       string
	Status           string
	RegisteredAt     time.Time
}

// IsValidStatus reports whether s is one of the four workflow statuses.
func IsValidStatus(s string) bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// Validate checks the row-level invariants before persistence.
// PRE: Participant struct is populated
// POST: Returns nil if valid, error otherwise
// INVARIANT: The three preferences are pairwise distinct
func (p *Participant) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return ErrEmptyName
	}
	if strings.TrimSpace(p.Email) == "" {
		return ErrEmptyEmail
	}
	if p.FirstPreference == p.SecondPreference ||
		p.FirstPreference == p.ThirdPreference ||
		p.SecondPreference == p.ThirdPreference {
		return ErrDuplicatePreference
	}
	if !IsValidStatus(p.Status) {
		return ErrInvalidStatus
	}
	return nil
}

// Preferences returns the three choices in rank order.
func (p *Participant) Preferences() [3]string {
	return [3]string{p.FirstPreference, p.SecondPreference, p.ThirdPreference}
}

// RankFor returns how the participant ranked the given workshop.
// INVARIANT: Participant fields are not mutated
func (p *Participant) RankFor(code string) Rank {
	switch code {
	case p.FirstPreference:
		return RankFirst
	case p.SecondPreference:
		return RankSecond
	case p.ThirdPreference:
		return RankThird
	default:
		return RankNone
	}
}

// HasTechSkills reports whether the optional skills text was filled in.
func (p *Participant) HasTechSkills() bool {
	return strings.TrimSpace(p.TechSkills) != ""
}
