package testutil

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcexec "github.com/testcontainers/testcontainers-go/exec"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"crm-sync/internal/config"
)

const (
	dbUser     = "testuser"
	dbPassword = "testpassword"
	dbName     = "test_db"
)

type PostgresHelper struct {
	Container *postgres.PostgresContainer
	Config    *config.Postgres
}

// NewPostgresContainer starts a PostgreSQL container. The host port is pinned once the
// container is up so Stop/Start cycles used by outage tests keep the same address.
func NewPostgresContainer(t require.TestingT, ctx context.Context) (*PostgresHelper, error) {
	hostPort := strconv.Itoa(reservePort())
	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase(dbName),
		postgres.WithUsername(dbUser),
		postgres.WithPassword(dbPassword),
		postgres.WithSQLDriver("pgx"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(1*time.Minute),
			wait.ForExposedPort().WithStartupTimeout(1*time.Minute),
		),
		testcontainers.WithHostConfigModifier(func(hostConfig *container.HostConfig) {
			hostConfig.PortBindings = nat.PortMap{nat.Port("5432/tcp"): []nat.PortBinding{{HostPort: hostPort}}}
		}),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")
	if err != nil {
		return nil, fmt.Errorf("failed to start PostgreSQL container: %w", err)
	}

	host, err := pgContainer.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get host: %w", err)
	}

	portNat, err := pgContainer.MappedPort(ctx, "5432/tcp")
	if err != nil {
		return nil, fmt.Errorf("failed to get mapped port: %w", err)
	}

	port, err := strconv.Atoi(portNat.Port())
	if err != nil {
		return nil, fmt.Errorf("failed to convert port to integer: %w", err)
	}

	return &PostgresHelper{
		Container: pgContainer,
		Config: &config.Postgres{
			Address:        host,
			Port:           port,
			Username:       dbUser,
			Password:       dbPassword,
			DBName:         dbName,
			SSLMode:        "disable",
			MaxConnections: 10,
		},
	}, nil
}

// ExecutePsqlCommand runs a statement through psql inside the container.
func (p *PostgresHelper) ExecutePsqlCommand(ctx context.Context, sql string) (string, error) {
	code, reader, err := p.Container.Exec(ctx,
		[]string{"psql", "-v", "ON_ERROR_STOP=1", "-U", dbUser, "-d", dbName, "-c", sql},
		tcexec.Multiplexed(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to execute psql: %w", err)
	}
	output, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("failed to read psql output: %w", err)
	}
	if code != 0 {
		return string(output), fmt.Errorf("psql exited with code %d: %s", code, output)
	}
	return string(output), nil
}

func (p *PostgresHelper) Terminate(ctx context.Context) error {
	if p.Container != nil {
		return p.Container.Terminate(ctx)
	}
	return nil
}

func (p *PostgresHelper) Stop(ctx context.Context, timeout *time.Duration) error {
	if p.Container != nil {
		return p.Container.Stop(ctx, timeout)
	}
	return nil
}

func (p *PostgresHelper) Start(ctx context.Context) error {
	if p.Container != nil {
		return p.Container.Start(ctx)
	}
	return nil
}
