package migrations

import (
	"embed"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"crm-sync/pkg/log"
)

// DefaultVersionTable keeps the engine's migration bookkeeping apart from that of other
// tools sharing the mirror database.
const DefaultVersionTable = "crm_sync_schema_migrations"

//go:embed postgres/*.sql
var PostgresFS embed.FS

// SyncStatusMigrations are the embedded migrations creating the sync_status relation.
type SyncStatusMigrations struct {
	fs           fs.FS
	versionTable string
}

func NewSyncStatusMigrations() *SyncStatusMigrations {
	subFS, err := fs.Sub(PostgresFS, "postgres")
	if err != nil {
		log.Logger.Error().Err(err).Msg("Failed to create sub filesystem for sync status migrations")
		return nil
	}
	return &SyncStatusMigrations{
		fs:           subFS,
		versionTable: DefaultVersionTable,
	}
}

// WithVersionTable returns a copy recording its version in table.
func (m *SyncStatusMigrations) WithVersionTable(table string) *SyncStatusMigrations {
	c := *m
	c.versionTable = table
	return &c
}

func (m *SyncStatusMigrations) SourceName() string {
	return "iofs"
}

func (m *SyncStatusMigrations) VersionTable() string {
	return m.versionTable
}

func (m *SyncStatusMigrations) Open() (source.Driver, error) {
	d, err := iofs.New(m.fs, ".")
	if err != nil {
		log.Logger.Error().Err(err).Msg("Failed to open embedded sync status migrations")
		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}
	return d, nil
}
