package test

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/docker/go-connections/nat"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	tcWait "github.com/testcontainers/testcontainers-go/wait"
)

const (
	pgPort     = "5432/tcp"
	pgUser     = "warehouse"
	pgPassword = "warehouse"
	pgDatabase = "warehouse_meta"

	EnvPostgresPortVariable = "PG_TEST_PORT"
)

//PostgresContainer is a meta storage database for integration tests
type PostgresContainer struct {
	*endpoint
	db *sql.DB
}

//NewPostgresContainer starts postgres:12-alpine unless PG_TEST_PORT points to a running database
func NewPostgresContainer(ctx context.Context) (*PostgresContainer, error) {
	e, external, err := externalEndpoint(ctx, EnvPostgresPortVariable)
	if err != nil {
		return nil, err
	}

	if !external {
		readyURL := func(port nat.Port) string {
			return fmt.Sprintf("postgres://%s:%s@localhost:%s/%s?sslmode=disable", pgUser, pgPassword, port.Port(), pgDatabase)
		}
		e, err = startEndpoint(ctx, testcontainers.ContainerRequest{
			Image:        "postgres:12-alpine",
			ExposedPorts: []string{pgPort},
			Env:          map[string]string{"POSTGRES_USER": pgUser, "POSTGRES_PASSWORD": pgPassword, "POSTGRES_DB": pgDatabase},
			WaitingFor:   tcWait.ForSQL(pgPort, "postgres", readyURL).Timeout(time.Minute),
		}, pgPort)
		if err != nil {
			return nil, err
		}
	}

	pgc := &PostgresContainer{endpoint: e}
	if pgc.db, err = sql.Open("postgres", pgc.DSN()); err == nil {
		err = pgc.db.PingContext(ctx)
	}
	if err != nil {
		pgc.Close()
		return nil, err
	}
	return pgc, nil
}

//DSN returns lib/pq connection string
func (pgc *PostgresContainer) DSN() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=disable",
		pgc.Host, pgc.Port, pgDatabase, pgUser, pgPassword)
}

//CountRows returns number of rows in the table or view
func (pgc *PostgresContainer) CountRows(table string) (int, error) {
	var count int
	err := pgc.db.QueryRow(fmt.Sprintf("SELECT count(*) FROM %s", table)).Scan(&count)
	return count, err
}

func (pgc *PostgresContainer) Close() error {
	if pgc.db != nil {
		_ = pgc.db.Close()
	}
	return pgc.endpoint.Close()
}
