package services

import "sync"

// ItemLocker serializes sync work per linked item within this process.
type ItemLocker struct {
	mu    sync.Mutex
	locks map[string]*itemLock
}

type itemLock struct {
	mu   sync.Mutex
	refs int
}

// NewItemLocker creates an empty ItemLocker.
func NewItemLocker() *ItemLocker {
	return &ItemLocker{locks: make(map[string]*itemLock)}
}

// Lock blocks until the item's lock is held and returns its release func.
func (l *ItemLocker) Lock(itemID string) func() {
	l.mu.Lock()
	lk, ok := l.locks[itemID]
	if !ok {
		lk = &itemLock{}
		l.locks[itemID] = lk
	}
	lk.refs++
	l.mu.Unlock()

	lk.mu.Lock()
	return func() {
		lk.mu.Unlock()
		l.mu.Lock()
		lk.refs--
		if lk.refs == 0 {
			delete(l.locks, itemID)
		}
		l.mu.Unlock()
	}
}
