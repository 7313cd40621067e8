package runtime

import (
	"sync"
)

// PairingTable maps identity keys to native wrappers. One table exists per
// Shared root type; descendants share their root's table.
type PairingTable struct {
	entries map[any]*Object
	mu      sync.RWMutex
}

// NewPairingTable creates an empty table.
func NewPairingTable() *PairingTable {
	return &PairingTable{entries: make(map[any]*Object)}
}

// Insert pairs key with w. It returns the wrapper paired afterwards and
// whether w was inserted; an existing pairing is never replaced.
func (t *PairingTable) Insert(key any, w *Object) (*Object, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.entries[key]; ok {
		return cur, false
	}
	t.entries[key] = w
	return w, true
}

// Get returns the wrapper paired with key.
func (t *PairingTable) Get(key any) (*Object, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	w, ok := t.entries[key]
	return w, ok
}

// Len returns the number of live pairings.
func (t *PairingTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}
