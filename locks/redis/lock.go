package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-redsync/redsync/v4"
	"github.com/ledgerops/warehouse/locks"
	"github.com/ledgerops/warehouse/logging"
	"github.com/ledgerops/warehouse/safego"
)

const (
	expiration    = 8 * time.Second
	lockTries     = 10
	unlockRetries = 4
)

func errUnlockFailed(name string) error {
	return fmt.Errorf("lock %s wasn't released", name)
}

//Lock is a redsync mutex. While held it is extended every half of the expiration
type Lock struct {
	name    string
	factory *LockFactory

	mutex         *redsync.Mutex
	stopHeartbeat context.CancelFunc
}

func (l *Lock) Lock(timeout time.Duration) error {
	return l.obtain(redsync.WithTries(lockTries), redsync.WithRetryDelay(timeout/lockTries))
}

func (l *Lock) TryLock() error {
	return l.obtain(redsync.WithTries(1), redsync.WithRetryDelay(0))
}

func (l *Lock) obtain(options ...redsync.Option) error {
	mutex := l.factory.redsync.NewMutex(l.name, append(options, redsync.WithExpiry(expiration))...)
	if err := mutex.LockContext(l.factory.ctx); err != nil {
		if errors.Is(err, redsync.ErrFailed) {
			return locks.ErrAlreadyLocked
		}
		l.factory.errorMetrics.NoticeError(err)
		return err
	}

	heartbeatCtx, cancel := context.WithCancel(l.factory.ctx)
	l.mutex = mutex
	l.stopHeartbeat = cancel
	safego.Run(func() { l.heartbeat(heartbeatCtx) })

	l.factory.held.add(l)
	return nil
}

func (l *Lock) heartbeat(ctx context.Context) {
	ticker := time.NewTicker(expiration / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ok, err := l.mutex.ExtendContext(ctx); err != nil || !ok {
				if ctx.Err() != nil {
					return
				}
				l.factory.errorMetrics.NoticeError(err)
				logging.SystemErrorf("[lock: %s] error extending (extended: %t): %v", l.name, ok, err)
			}
		}
	}
}

func (l *Lock) Unlock() bool {
	if l.mutex == nil {
		return false
	}

	l.stopHeartbeat()
	l.factory.held.remove(l)

	released := false
	operation := func() error {
		ok, err := l.mutex.Unlock()
		if err != nil {
			l.factory.errorMetrics.NoticeError(err)
			return err
		}
		released = ok
		return nil
	}
	notify := func(err error, next time.Duration) {
		logging.Warnf("[lock: %s] error releasing, retry in %s: %v", l.name, next, err)
	}

	if err := backoff.RetryNotify(operation, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), unlockRetries), notify); err != nil {
		logging.SystemErrorf("[lock: %s] error releasing: %v", l.name, err)
		return false
	}

	l.mutex = nil
	return released
}
