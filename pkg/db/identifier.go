package db

import (
	"strings"

	"github.com/jackc/pgx/v5"
)

// Identifiers is the single escaping function for table and column names. Values are
// never passed through it; they are always bound as parameters.
//
// When quoting is disabled, names are folded to lower case the way PostgreSQL folds
// unquoted identifiers, and still emitted quoted so no name can break out of its position.
type Identifiers struct {
	schema string
	quote  bool
}

func NewIdentifiers(schema string, quote bool) Identifiers {
	return Identifiers{schema: schema, quote: quote}
}

// Name escapes a single column or relation name.
func (i Identifiers) Name(name string) string {
	if !i.quote {
		name = strings.ToLower(name)
	}
	return pgx.Identifier{name}.Sanitize()
}

// Names escapes each name and joins them with a comma.
func (i Identifiers) Names(names []string) string {
	escaped := make([]string, len(names))
	for idx, name := range names {
		escaped[idx] = i.Name(name)
	}
	return strings.Join(escaped, ",")
}

// Table escapes a mirror table name, qualified by the configured schema.
func (i Identifiers) Table(name string) string {
	if i.schema == "" {
		return i.Name(name)
	}
	return i.Name(i.schema) + "." + i.Name(name)
}

// Schema returns the configured mirror schema, empty for the search_path.
func (i Identifiers) Schema() string {
	return i.schema
}
