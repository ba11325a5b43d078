package test

import (
	"context"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcWait "github.com/testcontainers/testcontainers-go/wait"
)

const (
	redisPort = "6379/tcp"

	EnvRedisPortVariable = "REDIS_TEST_PORT"
)

//RedisContainer is a meta storage and coordination Redis for integration tests
type RedisContainer struct {
	*endpoint
}

//NewRedisContainer starts redis:6-alpine unless REDIS_TEST_PORT points to a running Redis
func NewRedisContainer(ctx context.Context) (*RedisContainer, error) {
	e, external, err := externalEndpoint(ctx, EnvRedisPortVariable)
	if err != nil {
		return nil, err
	}
	if external {
		return &RedisContainer{endpoint: e}, nil
	}

	e, err = startEndpoint(ctx, testcontainers.ContainerRequest{
		Image:        "redis:6-alpine",
		ExposedPorts: []string{redisPort},
		WaitingFor:   tcWait.ForLog("Ready to accept connections").WithStartupTimeout(time.Minute),
	}, redisPort)
	if err != nil {
		return nil, err
	}
	return &RedisContainer{endpoint: e}, nil
}
