package migrations

import (
	"github.com/golang-migrate/migrate/v4/source"
)

// MigrationSource provides the versioned migrations of the engine's own relations and
// names the table recording the applied version.
type MigrationSource interface {
	SourceName() string
	Open() (source.Driver, error)
	VersionTable() string
}
