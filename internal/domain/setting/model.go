package setting

import "errors"

// RegistrationOpen is the switch for public intake.
const RegistrationOpen = "registration_open"

// Values used for boolean settings.
const (
	On  = "1"
	Off = "0"
)

var ErrNotFound = errors.New("setting not found")

// Setting is one persisted name/value pair.
type Setting struct {
	Name  string
	Value string
}

// Enabled reports whether a boolean setting is switched on.
func (s Setting) Enabled() bool {
	return s.Value == On
}

// FromBool renders a boolean as a setting value.
func FromBool(b bool) string {
	if b {
		return On
	}
	return Off
}
