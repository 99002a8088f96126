package engagement

import (
	"sync"

	"github.com/google/uuid"
)

// Locks serializes mutations per user. Entries are dropped once unused, so
// the map only holds users with a mutation in flight.
type Locks struct {
	mu sync.Mutex
	m  map[uuid.UUID]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

// NewLocks creates an empty lock table.
func NewLocks() *Locks {
	return &Locks{m: make(map[uuid.UUID]*userLock)}
}

// Lock blocks until the user's lock is held and returns its release func.
func (l *Locks) Lock(userID uuid.UUID) (unlock func()) {
	l.mu.Lock()
	ul, ok := l.m[userID]
	if !ok {
		ul = &userLock{}
		l.m[userID] = ul
	}
	ul.refs++
	l.mu.Unlock()

	ul.mu.Lock()
	return func() {
		ul.mu.Unlock()
		l.mu.Lock()
		ul.refs--
		if ul.refs == 0 {
			delete(l.m, userID)
		}
		l.mu.Unlock()
	}
}

// Held returns how many users currently have a lock entry.
func (l *Locks) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}
