package ledger

import (
	"sync"

	"github.com/google/uuid"
)

// customerLocks serializes balance computation per customer within this
// process. Held across the read-balance-then-insert window so two concurrent
// postings for the same customer cannot both read the same pre-entry balance.
// Entries are refcounted and removed once the last holder unlocks.
type customerLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*customerLock
}

type customerLock struct {
	mu   sync.Mutex
	refs int
}

func newCustomerLocks() *customerLocks {
	return &customerLocks{locks: map[uuid.UUID]*customerLock{}}
}

// Lock acquires the lock for the given customer and returns its unlock func.
func (c *customerLocks) Lock(customerID uuid.UUID) func() {
	c.mu.Lock()
	entry, ok := c.locks[customerID]
	if !ok {
		entry = &customerLock{}
		c.locks[customerID] = entry
	}
	entry.refs++
	c.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		c.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(c.locks, customerID)
		}
		c.mu.Unlock()
	}
}
