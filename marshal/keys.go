package marshal

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// Key formats accepted by NewKeyMinter.
const (
	KeyFormatCounter = "counter"
	KeyFormatUUID    = "uuid"
)

// KeyMinter produces fresh identity keys for Shared pairings.
type KeyMinter interface {
	Mint() any
}

// CounterKeys mints increasing numeric keys starting at 1.
type CounterKeys struct {
	n atomic.Uint64
}

// Mint returns the next number.
func (c *CounterKeys) Mint() any {
	return float64(c.n.Add(1))
}

// UUIDKeys mints random UUID strings.
type UUIDKeys struct{}

// Mint returns a new UUID string.
func (UUIDKeys) Mint() any {
	return uuid.NewString()
}

// NewKeyMinter returns the minter for a key format name. An empty name
// selects counter keys.
func NewKeyMinter(format string) (KeyMinter, error) {
	switch format {
	case "", KeyFormatCounter:
		return &CounterKeys{}, nil
	case KeyFormatUUID:
		return UUIDKeys{}, nil
	}
	return nil, fmt.Errorf("unknown key format %q", format)
}
