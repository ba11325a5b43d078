package inmemory

import (
	"sync"
	"time"

	"github.com/ledgerops/warehouse/locks"
)

const pollInterval = 10 * time.Millisecond

//LockFactory keeps lock owners in a map. For single node deployments
type LockFactory struct {
	mutex  sync.Mutex
	owners map[string]*Lock
}

func NewLockFactory() *LockFactory {
	return &LockFactory{owners: map[string]*Lock{}}
}

func (lf *LockFactory) CreateLock(name string) locks.Lock {
	return &Lock{name: name, factory: lf}
}

//acquire returns true if the name is free or already owned by the lock
func (lf *LockFactory) acquire(lock *Lock) bool {
	lf.mutex.Lock()
	defer lf.mutex.Unlock()

	if owner, ok := lf.owners[lock.name]; ok {
		return owner == lock
	}
	lf.owners[lock.name] = lock
	return true
}

func (lf *LockFactory) release(lock *Lock) bool {
	lf.mutex.Lock()
	defer lf.mutex.Unlock()

	if lf.owners[lock.name] != lock {
		return false
	}
	delete(lf.owners, lock.name)
	return true
}

//Lock is an in-memory lock. Only the instance which obtained the lock can release it
type Lock struct {
	name    string
	factory *LockFactory
}

func (l *Lock) Lock(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for !l.factory.acquire(l) {
		if !time.Now().Before(deadline) {
			return locks.ErrAlreadyLocked
		}
		time.Sleep(pollInterval)
	}
	return nil
}

func (l *Lock) TryLock() error {
	if !l.factory.acquire(l) {
		return locks.ErrAlreadyLocked
	}
	return nil
}

func (l *Lock) Unlock() bool {
	return l.factory.release(l)
}
