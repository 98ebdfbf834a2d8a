package session

import (
	"errors"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	domain "workshopreg/internal/domain/session"
)

// DefaultIdleTTL drops sessions nobody has touched for a day.
const DefaultIdleTTL = 24 * time.Hour

// sweepThreshold triggers an inline purge of expired entries on Save.
const sweepThreshold = 10000

var (
	ErrEmptyID  = errors.New("session id cannot be empty")
	ErrNotFound = errors.New("session not found")
)

// MemoryStore is an in-process session store. Entries expire lazily:
// Get ignores stale items and Save purges them once the store grows.
type MemoryStore struct {
	cache *gocache.Cache
	ttl   time.Duration
	locks keyedMutex
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a store whose entries live for ttl after their last Save.
// PRE: ttl > 0, otherwise DefaultIdleTTL is used
// POST: No background goroutine is started
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultIdleTTL
	}
	return &MemoryStore{
		cache: gocache.New(ttl, 0),
		ttl:   ttl,
		locks: keyedMutex{held: make(map[string]*idLock)},
	}
}

// Get retrieves a session by id.
// INVARIANT: Store state is not mutated
func (m *MemoryStore) Get(id string) (domain.Session, bool) {
	if id == "" {
		return domain.Session{}, false
	}
	v, ok := m.cache.Get(id)
	if !ok {
		return domain.Session{}, false
	}
	s, ok := v.(domain.Session)
	return s, ok
}

// Save stores the session under its id and restarts its TTL.
// PRE: s.ID is non-empty
func (m *MemoryStore) Save(s domain.Session) error {
	if s.ID == "" {
		return ErrEmptyID
	}
	if m.cache.ItemCount() >= sweepThreshold {
		m.cache.DeleteExpired()
	}
	m.cache.Set(s.ID, s, gocache.DefaultExpiration)
	return nil
}

// Delete removes a session.
func (m *MemoryStore) Delete(id string) {
	m.cache.Delete(id)
}

// Update runs fn on the stored session while holding that id's lock, then saves
// the result even when fn fails, so counters recorded before an error persist.
// PRE: fn does not call Update for the same id
// POST: Concurrent Updates of one id apply one after another
func (m *MemoryStore) Update(id string, fn func(*domain.Session) error) (domain.Session, error) {
	unlock := m.locks.lock(id)
	defer unlock()

	s, ok := m.Get(id)
	if !ok {
		return domain.Session{}, ErrNotFound
	}
	fnErr := fn(&s)
	if err := m.Save(s); err != nil {
		return s, err
	}
	return s, fnErr
}

// Rotate moves the session to a fresh id, invalidating the old one.
// POST: The returned session carries a new ID; the old ID no longer resolves
func (m *MemoryStore) Rotate(s domain.Session) (domain.Session, error) {
	id, err := domain.NewToken()
	if err != nil {
		return domain.Session{}, err
	}
	old := s.ID
	s.ID = id
	if err := m.Save(s); err != nil {
		return domain.Session{}, err
	}
	if old != "" {
		m.Delete(old)
	}
	return s, nil
}

// Len reports stored entries, including expired ones not yet purged.
func (m *MemoryStore) Len() int {
	return m.cache.ItemCount()
}

// keyedMutex hands out one mutex per session id and forgets it once unused.
type keyedMutex struct {
	mu   sync.Mutex
	held map[string]*idLock
}

type idLock struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) lock(id string) func() {
	k.mu.Lock()
	l, ok := k.held[id]
	if !ok {
		l = &idLock{}
		k.held[id] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.held, id)
		}
		k.mu.Unlock()
	}
}
