package db

import (
	"context"
	"log"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"crm-sync/internal/config"
	"crm-sync/pkg/db/migrations"
	"crm-sync/testutil"
)

type PostgresDatastoreTestSuite struct {
	suite.Suite
	pgHelper *testutil.PostgresHelper
	store    *PostgresDatastore
}

type testColumn struct {
	DataType   string
	IsNullable string
}

func TestPostgresDatastoreSuite(t *testing.T) {
	if os.Getenv("SKIP_INTEGRATION_TESTS") == "true" {
		t.Skip("Skipping integration tests")
	}
	suite.Run(t, new(PostgresDatastoreTestSuite))
}

func (s *PostgresDatastoreTestSuite) SetupSuite() {
	var err error
	s.pgHelper, err = testutil.NewPostgresContainer(s.T(), context.Background())
	require.NoError(s.T(), err, "Failed to start PostgreSQL container")
}

func (s *PostgresDatastoreTestSuite) TearDownTest() {
	if s.store != nil {
		s.store.Close()
		s.store = nil
	}
}

func (s *PostgresDatastoreTestSuite) TearDownSuite() {
	if s.pgHelper != nil {
		if err := s.pgHelper.Terminate(context.Background()); err != nil {
			log.Printf("Error terminating container: %v", err)
		}
	}
}

func (s *PostgresDatastoreTestSuite) TestNewPostgresDatastore() {
	s.Run("successful connection to postgres", func() {
		store, err := NewPostgresDatastore(s.pgHelper.Config, migrations.NewSyncStatusMigrations())
		require.NoError(s.T(), err, "Should create datastore without error")
		s.store = store

		assert.NotNil(s.T(), store.DB)
		assert.Equal(s.T(), "pgx", store.DB.DriverName())
	})

	s.Run("db connection failure returns error", func() {
		badConfig := &config.Postgres{
			Address:  "localhost",
			Port:     9999,
			Username: "wrong",
			Password: "wrong",
			DBName:   "wrongdb",
		}

		store, err := NewPostgresDatastore(badConfig, migrations.NewSyncStatusMigrations())

		assert.Nil(s.T(), store)
		assert.Error(s.T(), err)
		assert.True(s.T(),
			strings.Contains(err.Error(), "failed to connect to postgres") ||
				strings.Contains(err.Error(), "failed to ping database"),
			"unexpected error: %v", err)
	})

	s.Run("set maxConnection when it is configured", func() {
		cfg := *s.pgHelper.Config
		cfg.MaxConnections = 5
		store, err := NewPostgresDatastore(&cfg, migrations.NewSyncStatusMigrations())
		require.NoError(s.T(), err)
		s.store = store

		assert.Equal(s.T(), 5, store.DB.Stats().MaxOpenConnections)
	})

	s.Run("returns error without a migration source", func() {
		store, err := NewPostgresDatastore(s.pgHelper.Config, nil)

		assert.Nil(s.T(), store)
		assert.ErrorContains(s.T(), err, "no migration source configured")
	})
}

func (s *PostgresDatastoreTestSuite) TestInitSchema_VerifyTableStructure() {
	store, err := NewPostgresDatastore(s.pgHelper.Config, migrations.NewSyncStatusMigrations())
	require.NoError(s.T(), err)
	s.store = store

	expectedColumns := map[string]testColumn{
		"tablename":            {"text", "NO"},
		"status":               {"text", "NO"},
		"syncuntil":            {"timestamp without time zone", "YES"},
		"last_refresh":         {"timestamp without time zone", "YES"},
		"consecutive_failures": {"integer", "NO"},
		"last_error":           {"text", "YES"},
		"updated_at":           {"timestamp with time zone", "NO"},
		"transition_id":        {"uuid", "YES"},
	}

	actualColumns := s.getColumns("public", "sync_status")

	assert.Len(s.T(), actualColumns, len(expectedColumns))
	for col, exp := range expectedColumns {
		act, ok := actualColumns[col]
		assert.True(s.T(), ok, "Expected column '%s' not found", col)
		assert.Equal(s.T(), exp.DataType, act.DataType, "Data type mismatch for column '%s'", col)
		assert.True(s.T(), strings.EqualFold(exp.IsNullable, act.IsNullable), "Nullability mismatch for column '%s'", col)
	}

	var pkColumns []string
	err = store.DB.Select(&pkColumns, `
		SELECT kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name
		  AND tc.table_schema = kcu.table_schema
		WHERE tc.constraint_type = 'PRIMARY KEY'
		  AND tc.table_schema = 'public'
		  AND tc.table_name = 'sync_status'`)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), []string{"tablename"}, pkColumns)

	_, err = store.DB.Exec(`INSERT INTO sync_status (tablename, status) VALUES ('Bogus', 'paused')`)
	assert.Error(s.T(), err, "status check constraint should reject unknown states")

	var version int
	err = store.DB.Get(&version, `SELECT version FROM `+migrations.DefaultVersionTable)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), 2, version)
}

func (s *PostgresDatastoreTestSuite) TestWithPgxConn() {
	store, err := NewPostgresDatastore(s.pgHelper.Config, migrations.NewSyncStatusMigrations())
	require.NoError(s.T(), err)
	s.store = store

	var got int
	err = store.WithPgxConn(context.Background(), func(conn *pgx.Conn) error {
		return conn.QueryRow(context.Background(), "SELECT 41 + 1").Scan(&got)
	})

	require.NoError(s.T(), err)
	assert.Equal(s.T(), 42, got)
}

func (s *PostgresDatastoreTestSuite) TestHealthCheck() {
	s.Run("it stops healthcheck when DB is closed", func() {
		shortInterval := 100 * time.Millisecond
		original := defaultHealthCheckPeriod
		defaultHealthCheckPeriod = shortInterval
		defer func() { defaultHealthCheckPeriod = original }()

		store, err := NewPostgresDatastore(s.pgHelper.Config, migrations.NewSyncStatusMigrations())
		require.NoError(s.T(), err)

		time.Sleep(shortInterval * 3)
		require.NoError(s.T(), store.Close())

		assert.Nil(s.T(), store.healthCheckInterval)
		assert.Nil(s.T(), store.stopHealthCheckCh)
	})
}

func (s *PostgresDatastoreTestSuite) getColumns(schema string, table string) map[string]testColumn {
	query := `
		SELECT column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = $1
			AND table_name = $2
		ORDER BY ordinal_position;`
	rows, err := s.store.DB.Queryx(query, schema, table)
	require.NoError(s.T(), err)
	defer rows.Close()

	cols := make(map[string]testColumn)
	for rows.Next() {
		var name, dataType, isNullable string
		assert.NoError(s.T(), rows.Scan(&name, &dataType, &isNullable))
		cols[name] = testColumn{dataType, isNullable}
	}
	return cols
}
