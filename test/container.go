package test

import (
	"context"
	"os"
	"strconv"

	"github.com/docker/go-connections/nat"
	"github.com/ledgerops/warehouse/logging"
	"github.com/testcontainers/testcontainers-go"
)

//endpoint is a started container or an external service from a CI environment
type endpoint struct {
	container testcontainers.Container
	ctx       context.Context

	Host string
	Port int
}

//externalEndpoint returns localhost endpoint if the port variable is defined
func externalEndpoint(ctx context.Context, portVariable string) (*endpoint, bool, error) {
	value := os.Getenv(portVariable)
	if value == "" {
		return nil, false, nil
	}

	port, err := strconv.Atoi(value)
	if err != nil {
		return nil, true, err
	}
	return &endpoint{ctx: ctx, Host: "localhost", Port: port}, true, nil
}

//startEndpoint runs the container and resolves its mapped port
func startEndpoint(ctx context.Context, request testcontainers.ContainerRequest, port nat.Port) (*endpoint, error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: request, Started: true})
	if err != nil {
		return nil, err
	}

	e := &endpoint{container: container, ctx: ctx}
	host, err := container.Host(ctx)
	if err != nil {
		e.Close()
		return nil, err
	}
	mapped, err := container.MappedPort(ctx, port)
	if err != nil {
		e.Close()
		return nil, err
	}

	e.Host = host
	e.Port = mapped.Int()
	return e, nil
}

//Close terminates the container if it was started by the test
func (e *endpoint) Close() error {
	if e.container == nil {
		return nil
	}
	if err := e.container.Terminate(e.ctx); err != nil {
		logging.Errorf("Failed to stop %s container: %v", e.Host, err)
		return err
	}
	return nil
}
