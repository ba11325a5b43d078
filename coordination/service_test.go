package coordination

import (
	"context"
	"testing"

	"github.com/ledgerops/warehouse/locks"
	"github.com/ledgerops/warehouse/meta"
	"github.com/ledgerops/warehouse/test"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestInMemoryService(t *testing.T) {
	service := NewInMemoryService()
	defer service.Close()

	lock := service.CreateLock("pipeline:p1")
	require.NoError(t, lock.TryLock())
	require.Equal(t, locks.ErrAlreadyLocked, service.CreateLock("pipeline:p1").TryLock())
	require.True(t, lock.Unlock())
}

func TestRedisService(t *testing.T) {
	test.SkipIfNoIntegration(t, test.EnvRedisPortVariable)

	ctx := context.Background()
	container, err := test.NewRedisContainer(ctx)
	require.NoError(t, err)
	defer container.Close()

	service, err := NewRedisService(ctx, meta.NewRedisPoolFactory(container.Host, container.Port, ""))
	require.NoError(t, err)
	defer service.Close()

	lock := service.CreateLock("source:s1")
	require.NoError(t, lock.TryLock())
	require.Equal(t, locks.ErrAlreadyLocked, service.CreateLock("source:s1").TryLock())
	require.True(t, lock.Unlock())
	require.NoError(t, service.CreateLock("source:s1").TryLock())
}

func TestNewServiceFromConfig(t *testing.T) {
	config := viper.New()
	service, err := NewService(context.Background(), config)
	require.NoError(t, err)
	require.Equal(t, meta.InMemoryType, service.Mode())

	config.Set("coordination.type", "zookeeper")
	_, err = NewService(context.Background(), config)
	require.Error(t, err)

	config.Set("coordination.type", "redis")
	_, err = NewService(context.Background(), config)
	require.EqualError(t, err, "coordination.redis section is required for [redis] coordination")
}
