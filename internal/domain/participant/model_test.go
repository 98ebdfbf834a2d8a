package participant_test

import (
	"errors"
	"testing"

	"workshopreg/internal/domain/participant"
)

func validParticipant() participant.Participant {
	return participant.Participant{
		ID:               "p1",
		Name:             "Mona Adel",
		Email:            "mona@example.com",
		FirstPreference:  "Devology",
		SecondPreference: "Business",
		ThirdPreference:  "Techsolve",
		Status:           participant.StatusPending,
	}
}

// TestParticipantValidation tests validation of Participant.
func TestParticipantValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(p *participant.Participant)
		wantErr error
	}{
		{"valid", func(p *participant.Participant) {}, nil},
		{"empty name", func(p *participant.Participant) { p.Name = "  " }, participant.ErrEmptyName},
		{"empty email", func(p *participant.Participant) { p.Email = "" }, participant.ErrEmptyEmail},
		{"first equals second", func(p *participant.Participant) { p.SecondPreference = "Devology" }, participant.ErrDuplicatePreference},
		{"first equals third", func(p *participant.Participant) { p.ThirdPreference = "Devology" }, participant.ErrDuplicatePreference},
		{"second equals third", func(p *participant.Participant) { p.ThirdPreference = "Business" }, participant.ErrDuplicatePreference},
		{"unknown status", func(p *participant.Participant) { p.Status = "accepted" }, participant.ErrInvalidStatus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validParticipant()
			tt.mutate(&p)
			err := p.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Participant.Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParticipantRankFor(t *testing.T) {
	p := validParticipant()
	tests := []struct {
		code      string
		want      participant.Rank
		wantLabel string
	}{
		{"Devology", participant.RankFirst, "First Preference"},
		{"Business", participant.RankSecond, "Second Preference"},
		{"Techsolve", participant.RankThird, "Third Preference"},
		{"UI/UX", participant.RankNone, ""},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			got := p.RankFor(tt.code)
			if got != tt.want {
				t.Fatalf("RankFor(%q) = %v, want %v", tt.code, got, tt.want)
			}
			if got.Label() != tt.wantLabel {
				t.Fatalf("Label() = %q, want %q", got.Label(), tt.wantLabel)
			}
		})
	}
}

func TestParticipantHasTechSkills(t *testing.T) {
	p := validParticipant()
	if p.HasTechSkills() {
		t.Fatal("empty skills reported as present")
	}
	p.TechSkills = "Go, SQL"
	if !p.HasTechSkills() {
		t.Fatal("skills not reported")
	}
}
