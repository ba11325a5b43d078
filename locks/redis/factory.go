package redis

import (
	"context"
	"io"

	"github.com/go-redsync/redsync/v4"
	rsyncpool "github.com/go-redsync/redsync/v4/redis/redigo"
	"github.com/ledgerops/warehouse/locks"
	"github.com/ledgerops/warehouse/meta"
	"github.com/ledgerops/warehouse/metrics"
)

//keyPrefix separates lock keys from meta storage keys in a shared Redis
const keyPrefix = "warehouse:lock:"

//LockFactory creates redsync locks
type LockFactory struct {
	ctx          context.Context
	redsync      *redsync.Redsync
	errorMetrics *meta.ErrorMetrics
	held         *heldLocks
}

//NewLockFactory returns the factory and a closer which releases all locks held by this instance
func NewLockFactory(ctx context.Context, pool *meta.RedisPool) (*LockFactory, io.Closer) {
	held := newHeldLocks()
	return &LockFactory{
		ctx:          ctx,
		redsync:      redsync.New(rsyncpool.NewPool(pool.GetPool())),
		errorMetrics: meta.NewErrorMetrics(metrics.CoordinationRedisErrors),
		held:         held,
	}, held
}

func (lf *LockFactory) CreateLock(name string) locks.Lock {
	return &Lock{name: keyPrefix + name, factory: lf}
}
