package merge

import (
	"fmt"
	"strings"

	"crm-sync/internal/tabledesc"
	"crm-sync/pkg/db"
)

type statements struct {
	createStage string
	copy        string
	upsert      string
	delete      string
	batchMax    string
}

// buildStatements renders the merge statements for desc. Only escaped identifiers are
// interpolated.
func buildStatements(ids db.Identifiers, desc *tabledesc.Descriptor) statements {
	mirror := ids.Table(desc.Name)
	stage := ids.Name("crm_sync_stage_" + strings.ToLower(desc.Name))
	fields := ids.Names(desc.SyncFields)
	pk := ids.Name(desc.PrimaryKeyField)
	ts := ids.Name(desc.TimestampField)

	var s statements
	s.createStage = fmt.Sprintf("CREATE TEMP TABLE %s ON COMMIT DROP AS SELECT %s FROM %s WITH NO DATA",
		stage, fields, mirror)

	copyOpts := "FORMAT csv, HEADER true"
	if nullable := desc.NullableFields(); len(nullable) > 0 {
		copyOpts += ", FORCE_NULL (" + ids.Names(nullable) + ")"
	}
	s.copy = fmt.Sprintf("COPY %s (%s) FROM STDIN WITH (%s)", stage, fields, copyOpts)

	// latest version of every key; on equal timestamps a deleted version wins
	order := pk + ", " + ts + " DESC"
	if desc.HasDeletedField() {
		order += ", " + ids.Name(desc.DeletedField) + " DESC NULLS LAST"
	}
	latest := fmt.Sprintf("SELECT DISTINCT ON (%s) %s FROM %s ORDER BY %s", pk, fields, stage, order)

	var updates []string
	for _, name := range desc.SyncFields {
		if name == desc.PrimaryKeyField {
			continue
		}
		col := ids.Name(name)
		updates = append(updates, col+" = EXCLUDED."+col)
	}
	conflict := "DO NOTHING"
	if len(updates) > 0 {
		conflict = "DO UPDATE SET " + strings.Join(updates, ", ")
	}

	filter := ""
	if desc.HasDeletedField() {
		filter = " WHERE latest." + ids.Name(desc.DeletedField) + " IS NOT TRUE"
	}
	s.upsert = fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM (%s) AS latest%s ON CONFLICT (%s) %s",
		mirror, fields, fields, latest, filter, pk, conflict)

	if desc.HasDeletedField() {
		s.delete = fmt.Sprintf("DELETE FROM %s AS mirror USING (%s) AS latest WHERE mirror.%s = latest.%s AND latest.%s IS TRUE",
			mirror, latest, pk, pk, ids.Name(desc.DeletedField))
	}

	s.batchMax = fmt.Sprintf("SELECT max(%s) FROM %s", ts, stage)
	return s
}
