package orchestrators

import (
	"bytes"
	"context"
	"html/template"

	"workshopreg/internal/adapters/email"
	"workshopreg/internal/domain/participant"
)

var confirmationTemplate = template.Must(template.New("confirmation").Parse(`<p>Hi {{.Name}},</p>
<p>Thank you for registering. Your workshop preferences are:</p>
<ol>{{range .Workshops}}<li>{{.}}</li>{{end}}</ol>
<p>An organizer will contact you soon.</p>`))

// WorkshopNamer resolves display names for workshop codes.
type WorkshopNamer interface {
	Name(code string) string
}

// ConfirmationMailer emails registrants their chosen workshops.
type ConfirmationMailer struct {
	Sender    email.Sender
	Workshops WorkshopNamer
	Subject   string
}

// NotifyRegistered sends the confirmation for p.
// PRE: p.Email is a validated address
// POST: One message is handed to the sender
func (m ConfirmationMailer) NotifyRegistered(ctx context.Context, p participant.Participant) error {
	prefs := p.Preferences()
	data := struct {
		Name      string
		Workshops []string
	}{Name: p.Name}
	for _, code := range prefs {
		data.Workshops = append(data.Workshops, m.Workshops.Name(code))
	}

	var body bytes.Buffer
	if err := confirmationTemplate.Execute(&body, data); err != nil {
		return err
	}
	subject := m.Subject
	if subject == "" {
		subject = "Workshop registration received"
	}
	_, err := m.Sender.Send(ctx, email.Message{
		To:      []string{p.Email},
		Subject: subject,
		HTML:    body.String(),
	})
	return err
}
