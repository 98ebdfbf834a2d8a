package session

import domain "workshopreg/internal/domain/session"

// Store holds browser sessions keyed by id.
type Store interface {
	Get(id string) (domain.Session, bool)
	Save(s domain.Session) error
	Delete(id string)
	Rotate(s domain.Session) (domain.Session, error)
	Update(id string, fn func(*domain.Session) error) (domain.Session, error)
}
