package redis

import (
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/ledgerops/warehouse/logging"
)

//heldLocks is a set of locks obtained by this instance. They are released on shutdown
//so other instances don't wait for the expiration
type heldLocks struct {
	mutex sync.Mutex
	locks map[*Lock]bool
}

func newHeldLocks() *heldLocks {
	return &heldLocks{locks: map[*Lock]bool{}}
}

func (hl *heldLocks) add(lock *Lock) {
	hl.mutex.Lock()
	hl.locks[lock] = true
	hl.mutex.Unlock()
}

func (hl *heldLocks) remove(lock *Lock) {
	hl.mutex.Lock()
	delete(hl.locks, lock)
	hl.mutex.Unlock()
}

func (hl *heldLocks) snapshot() []*Lock {
	hl.mutex.Lock()
	defer hl.mutex.Unlock()

	result := make([]*Lock, 0, len(hl.locks))
	for lock := range hl.locks {
		result = append(result, lock)
	}
	return result
}

//Close releases all held locks
func (hl *heldLocks) Close() error {
	var multiErr error
	for _, lock := range hl.snapshot() {
		logging.Warnf("[graceful] releasing lock %s", lock.name)
		if !lock.Unlock() {
			multiErr = multierror.Append(multiErr, errUnlockFailed(lock.name))
		}
	}
	return multiErr
}
