// Package tablematching selects tables by name patterns such as "Account*" or "*__c".
package tablematching

import (
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// TableMatcher holds include and ignore patterns. Plain names are patterns matching
// only themselves.
type TableMatcher struct {
	include []string
	ignore  []string
}

func NewTableMatcher(include, ignore []string) *TableMatcher {
	return &TableMatcher{include: include, ignore: ignore}
}

// HasPattern reports whether name contains glob syntax.
func HasPattern(name string) bool {
	return strings.ContainsAny(name, "*?[{\\")
}

// ShouldSync checks if a table is selected by the include patterns and by none of the
// ignore patterns. An empty include list selects every table.
func (m *TableMatcher) ShouldSync(table string) bool {
	for _, pattern := range m.ignore {
		if matchesGlobPattern(pattern, table) {
			return false
		}
	}
	if len(m.include) == 0 {
		return true
	}
	for _, pattern := range m.include {
		if matchesGlobPattern(pattern, table) {
			return true
		}
	}
	return false
}

// Select returns the tables to synchronize. Plain include names are kept even when not
// among known, so an unregistered table still reaches the store and fails there.
// Patterns only expand to known tables. The result is sorted and free of duplicates.
func (m *TableMatcher) Select(known []string) []string {
	var selected []string
	for _, name := range m.include {
		if !HasPattern(name) && m.ShouldSync(name) {
			selected = append(selected, name)
		}
	}
	if m.NeedsKnownTables() {
		for _, table := range known {
			if m.ShouldSync(table) {
				selected = append(selected, table)
			}
		}
	}
	slices.Sort(selected)
	return slices.Compact(selected)
}

// NeedsKnownTables reports whether Select depends on the list of known tables.
func (m *TableMatcher) NeedsKnownTables() bool {
	return len(m.include) == 0 || slices.ContainsFunc(m.include, HasPattern)
}

func matchesGlobPattern(pattern, table string) bool {
	matched, err := doublestar.Match(pattern, table)
	if err != nil {
		return false
	}
	return matched
}
