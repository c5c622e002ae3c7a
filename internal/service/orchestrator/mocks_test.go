package orchestrator

import (
	"context"
	"iter"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"crm-sync/internal/extract"
	"crm-sync/internal/merge"
	"crm-sync/internal/models"
	"crm-sync/internal/repository"
	"crm-sync/internal/salesforce"
	"crm-sync/internal/tabledesc"
)

type MockStatusStore struct {
	mock.Mock
}

func (m *MockStatusStore) GetStatus(ctx context.Context, table string) (*models.SyncStatus, error) {
	args := m.Called(ctx, table)
	status, _ := args.Get(0).(*models.SyncStatus)
	return status, args.Error(1)
}

func (m *MockStatusStore) ListStatuses(ctx context.Context) ([]models.SyncStatus, error) {
	args := m.Called(ctx)
	statuses, _ := args.Get(0).([]models.SyncStatus)
	return statuses, args.Error(1)
}

func (m *MockStatusStore) Register(ctx context.Context, table string, watermark time.Time) (*models.SyncStatus, error) {
	args := m.Called(ctx, table, watermark)
	status, _ := args.Get(0).(*models.SyncStatus)
	return status, args.Error(1)
}

func (m *MockStatusStore) Transition(
	ctx context.Context,
	table string,
	newStatus models.Status,
	opts repository.TransitionOptions,
) (*models.SyncStatus, error) {
	args := m.Called(ctx, table, newStatus, opts)
	status, _ := args.Get(0).(*models.SyncStatus)
	return status, args.Error(1)
}

type MockMerger struct {
	mock.Mock
}

func (m *MockMerger) Merge(ctx context.Context, desc *tabledesc.Descriptor, staged merge.Staged) (*merge.Result, error) {
	args := m.Called(ctx, desc, staged)
	result, _ := args.Get(0).(*merge.Result)
	return result, args.Error(1)
}

// staticResolver resolves every table to a copy of one descriptor renamed to the table.
type staticResolver struct {
	desc *tabledesc.Descriptor
	err  error
}

func (r staticResolver) Resolve(_ context.Context, table string) (*tabledesc.Descriptor, error) {
	if r.err != nil {
		return nil, r.err
	}
	desc := *r.desc
	desc.Name = table
	return &desc, nil
}

// fakeSource yields fixed records per table, calls drained if set, then err if set.
type fakeSource struct {
	records map[string][]extract.ChangeRecord
	err     error
	pending int
	drained func()

	mu   sync.Mutex
	seen []time.Time
}

func (f *fakeSource) ExtractSince(
	ctx context.Context,
	desc *tabledesc.Descriptor,
	watermark time.Time,
	_ bool,
) iter.Seq2[extract.ChangeRecord, error] {
	f.mu.Lock()
	f.seen = append(f.seen, watermark)
	f.mu.Unlock()
	return func(yield func(extract.ChangeRecord, error) bool) {
		for _, record := range f.records[desc.Name] {
			if !yield(record, nil) {
				return
			}
		}
		if f.drained != nil {
			f.drained()
		}
		if f.err != nil {
			yield(nil, f.err)
			return
		}
		if err := ctx.Err(); err != nil {
			yield(nil, err)
		}
	}
}

func (f *fakeSource) CountSince(context.Context, *tabledesc.Descriptor, time.Time, bool) (int, error) {
	return f.pending, f.err
}

func accountDescriptor() *tabledesc.Descriptor {
	return &tabledesc.Descriptor{
		Name: "Account",
		Fields: map[string]salesforce.FieldMetadata{
			"Id":             {Name: "Id", Type: "id"},
			"Name":           {Name: "Name", Type: "string", Nillable: true},
			"IsDeleted":      {Name: "IsDeleted", Type: "boolean"},
			"SystemModstamp": {Name: "SystemModstamp", Type: "datetime"},
		},
		SyncFields:      []string{"Id", "Name", "IsDeleted", "SystemModstamp"},
		PrimaryKeyField: "Id",
		TimestampField:  "SystemModstamp",
		DeletedField:    "IsDeleted",
	}
}

func scenarioRecords() []extract.ChangeRecord {
	return []extract.ChangeRecord{
		{"Id": "A1", "Name": "Acme", "IsDeleted": false, "SystemModstamp": "2024-01-02T00:00:00Z"},
		{"Id": "A2", "Name": "Old", "IsDeleted": true, "SystemModstamp": "2024-01-02T00:00:01Z"},
	}
}
