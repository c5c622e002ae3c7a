package tabledesc

import (
	"context"
	"slices"
	"sync"

	"github.com/rs/zerolog"

	"crm-sync/internal/salesforce"
	"crm-sync/pkg/log"
)

const (
	FieldID         = "Id"
	FieldDurableID  = "DurableId"
	FieldIsDeleted  = "IsDeleted"
	FieldModstamp   = "SystemModstamp"
	FieldLastModify = "LastModifiedDate"
	FieldCreated    = "CreatedDate"
)

// timestampPriority lists the candidate change timestamps, most precise first.
//
//nolint:gochecknoglobals
var timestampPriority = []string{FieldModstamp, FieldLastModify, FieldCreated}

// Describer is the remote capability of listing a table's fields.
type Describer interface {
	Describe(ctx context.Context, table string) ([]salesforce.FieldMetadata, error)
}

// Descriptor is the resolved, immutable shape of one synchronized table.
type Descriptor struct {
	Name            string
	Fields          map[string]salesforce.FieldMetadata
	SyncFields      []string
	IndexedFields   []string
	PrimaryKeyField string
	TimestampField  string
	// DeletedField is empty when the table carries no soft-delete flag.
	DeletedField string
}

func (d *Descriptor) Field(name string) salesforce.FieldMetadata {
	return d.Fields[name]
}

func (d *Descriptor) HasDeletedField() bool {
	return d.DeletedField != ""
}

// NullableFields lists the synchronized fields the remote declares nillable, in sync order.
func (d *Descriptor) NullableFields() []string {
	var nullable []string
	for _, name := range d.SyncFields {
		if d.Fields[name].Nillable {
			nullable = append(nullable, name)
		}
	}
	return nullable
}

// Resolver builds descriptors and caches them for the life of the process.
type Resolver struct {
	describer Describer
	mappings  MappingSource
	logger    zerolog.Logger

	mu    sync.Mutex
	cache map[string]*Descriptor
}

func NewResolver(describer Describer, mappings MappingSource) *Resolver {
	return &Resolver{
		describer: describer,
		mappings:  mappings,
		cache:     make(map[string]*Descriptor),
		logger: log.Logger.With().
			Str("component", "table_descriptor").
			Logger(),
	}
}

func (r *Resolver) Resolve(ctx context.Context, table string) (*Descriptor, error) {
	r.mu.Lock()
	cached, ok := r.cache[table]
	r.mu.Unlock()
	if ok {
		return cached, nil
	}

	entries, err := r.mappings.Load(table)
	if err != nil {
		return nil, err
	}
	fields, err := r.describer.Describe(ctx, table)
	if err != nil {
		return nil, err
	}
	desc, err := Build(table, entries, fields)
	if err != nil {
		r.logger.Error().Err(err).Str("table", table).Msg("Failed to resolve table descriptor")
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.cache[table]; ok {
		return existing, nil
	}
	r.cache[table] = desc
	r.logger.Debug().
		Str("table", table).
		Strs("sync_fields", desc.SyncFields).
		Str("pk", desc.PrimaryKeyField).
		Str("timestamp", desc.TimestampField).
		Str("deleted", desc.DeletedField).
		Msg("Resolved table descriptor")
	return desc, nil
}

// Build validates a mapping against the remote description and derives the key fields.
func Build(table string, entries []MappingEntry, remote []salesforce.FieldMetadata) (*Descriptor, error) {
	desc := &Descriptor{
		Name:   table,
		Fields: make(map[string]salesforce.FieldMetadata, len(remote)),
	}
	for _, f := range remote {
		desc.Fields[f.Name] = f
	}

	seen := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		if _, dup := seen[entry.Name]; dup {
			return nil, configErrorf(table, "field %s is listed more than once", entry.Name)
		}
		seen[entry.Name] = struct{}{}
		if !entry.Include {
			continue
		}
		if _, ok := desc.Fields[entry.Name]; !ok {
			return nil, configErrorf(table, "field %s is not present in the remote description", entry.Name)
		}
		desc.SyncFields = append(desc.SyncFields, entry.Name)
		if entry.Indexed {
			desc.IndexedFields = append(desc.IndexedFields, entry.Name)
		}
	}
	if len(desc.SyncFields) == 0 {
		return nil, configErrorf(table, "no field is selected for synchronization")
	}

	synced := func(name string) bool {
		return slices.Contains(desc.SyncFields, name)
	}

	switch {
	case synced(FieldDurableID):
		desc.PrimaryKeyField = FieldDurableID
	case synced(FieldID):
		desc.PrimaryKeyField = FieldID
	default:
		return nil, configErrorf(table, "no primary key: %s or %s must be synchronized", FieldDurableID, FieldID)
	}

	for _, candidate := range timestampPriority {
		if synced(candidate) {
			desc.TimestampField = candidate
			break
		}
	}
	if desc.TimestampField == "" {
		return nil, configErrorf(table, "no change timestamp: one of %v must be synchronized", timestampPriority)
	}

	if synced(FieldIsDeleted) {
		desc.DeletedField = FieldIsDeleted
	}
	return desc, nil
}
