package coordination

import (
	"context"
	"io"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/ledgerops/warehouse/locks"
	inmemorylocks "github.com/ledgerops/warehouse/locks/inmemory"
	redislocks "github.com/ledgerops/warehouse/locks/redis"
	"github.com/ledgerops/warehouse/logging"
	"github.com/ledgerops/warehouse/meta"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

//Service hands out run locks. Instances which share one meta storage must share one coordination Redis
type Service struct {
	locks.LockFactory

	mode    string
	closers []io.Closer
}

//NewService creates the service from the coordination config section.
//coordination.redis falls back to meta.storage.redis, an empty type means in-memory locks
func NewService(ctx context.Context, config *viper.Viper) (*Service, error) {
	coordinationType := ""
	if config != nil {
		coordinationType = strings.ToLower(strings.TrimSpace(config.GetString("coordination.type")))
	}

	switch coordinationType {
	case "", meta.InMemoryType:
		logging.Info("Coordination service isn't configured. In-memory locks will be used (single node mode)")
		return NewInMemoryService(), nil
	case meta.RedisType:
		redisConfig := config.Sub("coordination.redis")
		if redisConfig == nil {
			redisConfig = config.Sub("meta.storage.redis")
		}
		if redisConfig == nil {
			return nil, errors.New("coordination.redis section is required for [redis] coordination")
		}

		factory := meta.NewRedisPoolFactory(redisConfig.GetString("host"), redisConfig.GetInt("port"), redisConfig.GetString("password"))
		if defaultPort, ok := factory.CheckAndSetDefaultPort(); ok {
			logging.Infof("coordination.redis.port isn't configured. Will be used default: %d", defaultPort)
		}
		return NewRedisService(ctx, factory)
	default:
		return nil, errors.Errorf("unknown coordination.type: [%s]. Supported: [%s, %s]", coordinationType, meta.RedisType, meta.InMemoryType)
	}
}

func NewRedisService(ctx context.Context, factory *meta.RedisPoolFactory) (*Service, error) {
	logging.Infof("🛫 Initializing redis coordination service [%s]...", factory.Details())

	pool, err := factory.Create()
	if err != nil {
		return nil, errors.Wrap(err, "error connecting coordination redis")
	}

	lockFactory, heldLocks := redislocks.NewLockFactory(ctx, pool)
	//held locks are released before the pool is closed
	return &Service{LockFactory: lockFactory, mode: meta.RedisType, closers: []io.Closer{heldLocks, pool}}, nil
}

func NewInMemoryService() *Service {
	return &Service{LockFactory: inmemorylocks.NewLockFactory(), mode: meta.InMemoryType}
}

//Mode is redis or inmemory
func (s *Service) Mode() string {
	return s.mode
}

func (s *Service) Close() error {
	var multiErr error
	for _, closer := range s.closers {
		if err := closer.Close(); err != nil {
			multiErr = multierror.Append(multiErr, err)
		}
	}
	return multiErr
}
