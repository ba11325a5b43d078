package locks

import (
	"errors"
	"time"
)

//ErrAlreadyLocked is returned when a run of the same entity holds the lock
var ErrAlreadyLocked = errors.New("Resource has been already locked")

//LockFactory creates locks. Created locks aren't held
type LockFactory interface {
	CreateLock(name string) Lock
}

//Lock serializes runs of one entity across warehouse instances
type Lock interface {
	//Lock waits up to timeout. Returns ErrAlreadyLocked if the lock wasn't obtained
	Lock(timeout time.Duration) error
	//TryLock makes one attempt. Returns ErrAlreadyLocked if the lock is held
	TryLock() error
	//Unlock returns false if the lock wasn't held by this instance
	Unlock() bool
}
