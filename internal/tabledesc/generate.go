package tabledesc

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

//nolint:gochecknoglobals
var minimalFields = map[string]struct{}{
	FieldID:        {},
	FieldCreated:   {},
	FieldIsDeleted: {},
	FieldModstamp:  {},
}

// GenerateMapping writes an initial mapping file for table from its remote description.
// Calculated fields are left out unless listed explicitly later; address, compound and
// encrypted fields are never selected. With minimal set, only the fields needed to track
// changes are selected.
func GenerateMapping(ctx context.Context, describer Describer, table string, minimal bool, w io.Writer) error {
	fields, err := describer.Describe(ctx, table)
	if err != nil {
		return err
	}

	compound := make(map[string]struct{})
	for _, f := range fields {
		if f.CompoundFieldName != "" {
			compound[f.CompoundFieldName] = struct{}{}
		}
	}

	out := csv.NewWriter(w)
	if err := out.Write([]string{"FieldName", "Import", "Indexed", "Note"}); err != nil {
		return err
	}
	for _, f := range fields {
		include := !f.Calculated
		if minimal {
			_, include = minimalFields[f.Name]
		}

		var notes []string
		if f.Type == "address" {
			notes = append(notes, "address")
			include = false
		}
		if _, ok := compound[f.Name]; ok {
			notes = append(notes, "compound")
			include = false
		}
		if f.Type == "encryptedstring" {
			notes = append(notes, "encryptedstring")
			include = false
		}
		if f.Calculated {
			notes = append(notes, "calculated")
		}

		flag := ""
		if include {
			flag = "1"
		}
		indexed := ""
		if f.Name == FieldModstamp {
			indexed = "1"
		}
		if err := out.Write([]string{f.Name, flag, indexed, strings.Join(notes, " ")}); err != nil {
			return err
		}
	}
	out.Flush()
	if err := out.Error(); err != nil {
		return fmt.Errorf("failed to write mapping for %s: %w", table, err)
	}
	return nil
}
