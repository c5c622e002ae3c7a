package tabledesc

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// MappingEntry is one row of a mapping file.
type MappingEntry struct {
	Name    string
	Include bool
	Indexed bool
}

// MappingSource yields the operator's field selection for a table.
type MappingSource interface {
	Load(table string) ([]MappingEntry, error)
}

// DirMappingSource reads <Dir>/<Table>.csv.
type DirMappingSource struct {
	Dir string
}

func NewDirMappingSource(dir string) *DirMappingSource {
	return &DirMappingSource{Dir: dir}
}

func (s *DirMappingSource) Path(table string) string {
	return filepath.Join(s.Dir, table+".csv")
}

func (s *DirMappingSource) Load(table string) ([]MappingEntry, error) {
	f, err := os.Open(s.Path(table))
	if err != nil {
		return nil, &ConfigurationError{Table: table, Reason: "mapping file cannot be read", Err: err}
	}
	defer f.Close()

	entries, err := ParseMapping(f)
	if err != nil {
		return nil, &ConfigurationError{Table: table, Reason: "mapping file is malformed", Err: err}
	}
	return entries, nil
}

// ParseMapping reads mapping rows of the form fieldName,include,indexed. Extra columns
// hold free-form notes and are ignored. A first row starting with FieldName is a header.
func ParseMapping(r io.Reader) ([]MappingEntry, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var entries []MappingEntry
	for line := 1; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(row[0]), "FieldName") {
			continue
		}
		if len(row) < 2 {
			return nil, fmt.Errorf("line %d: expected at least 2 columns, got %d", line, len(row))
		}

		name := strings.TrimSpace(row[0])
		if name == "" {
			return nil, fmt.Errorf("line %d: empty field name", line)
		}
		include, err := parseFlag(row[1])
		if err != nil {
			return nil, fmt.Errorf("line %d: include column: %w", line, err)
		}
		var indexed bool
		if len(row) > 2 {
			if indexed, err = parseFlag(row[2]); err != nil {
				return nil, fmt.Errorf("line %d: indexed column: %w", line, err)
			}
		}
		entries = append(entries, MappingEntry{Name: name, Include: include, Indexed: indexed})
	}
	return entries, nil
}

func parseFlag(value string) (bool, error) {
	switch strings.TrimSpace(value) {
	case "1":
		return true, nil
	case "0", "":
		return false, nil
	default:
		return false, fmt.Errorf("expected 0, 1 or empty, got %q", value)
	}
}
