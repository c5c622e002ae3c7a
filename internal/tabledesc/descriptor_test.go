package tabledesc

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm-sync/internal/salesforce"
)

type fakeDescriber struct {
	fields map[string][]salesforce.FieldMetadata
	err    error
	calls  atomic.Int32
}

func (f *fakeDescriber) Describe(_ context.Context, table string) ([]salesforce.FieldMetadata, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.fields[table], nil
}

func accountFields() []salesforce.FieldMetadata {
	return []salesforce.FieldMetadata{
		{Name: "Id", Type: "id"},
		{Name: "Name", Type: "string", Nillable: true},
		{Name: "IsDeleted", Type: "boolean"},
		{Name: "CreatedDate", Type: "datetime"},
		{Name: "LastModifiedDate", Type: "datetime"},
		{Name: "SystemModstamp", Type: "datetime"},
		{Name: "AnnualRevenue", Type: "currency", Nillable: true},
		{Name: "DurableId", Type: "string"},
	}
}

func writeMapping(t *testing.T, dir, table, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, table+".csv"), []byte(content), 0o600))
}

func TestResolver_Resolve(t *testing.T) {
	dir := t.TempDir()
	writeMapping(t, dir, "Account", `"FieldName","Import","Indexed","Note"
Id,1,1
Name,1,
IsDeleted,1,0
CreatedDate,1
LastModifiedDate,0
SystemModstamp,1,1
AnnualRevenue,1,,free text note
DurableId,,
`)
	describer := &fakeDescriber{fields: map[string][]salesforce.FieldMetadata{"Account": accountFields()}}
	resolver := NewResolver(describer, NewDirMappingSource(dir))

	desc, err := resolver.Resolve(context.Background(), "Account")

	require.NoError(t, err)
	assert.Equal(t, "Account", desc.Name)
	assert.Equal(t, []string{"Id", "Name", "IsDeleted", "CreatedDate", "SystemModstamp", "AnnualRevenue"}, desc.SyncFields)
	assert.Equal(t, []string{"Id", "SystemModstamp"}, desc.IndexedFields)
	assert.Equal(t, "Id", desc.PrimaryKeyField)
	assert.Equal(t, "SystemModstamp", desc.TimestampField)
	assert.Equal(t, "IsDeleted", desc.DeletedField)
	assert.True(t, desc.HasDeletedField())
	assert.Equal(t, []string{"Name", "AnnualRevenue"}, desc.NullableFields())
	assert.Equal(t, "currency", desc.Field("AnnualRevenue").Type)

	again, err := resolver.Resolve(context.Background(), "Account")
	require.NoError(t, err)
	assert.Same(t, desc, again)
	assert.Equal(t, int32(1), describer.calls.Load(), "descriptor should be cached")
}

func TestResolver_RemoteFailure(t *testing.T) {
	dir := t.TempDir()
	writeMapping(t, dir, "Account", "Id,1\nSystemModstamp,1\n")
	remoteErr := errors.New("remote down")
	resolver := NewResolver(&fakeDescriber{err: remoteErr}, NewDirMappingSource(dir))

	_, err := resolver.Resolve(context.Background(), "Account")

	assert.ErrorIs(t, err, remoteErr)
}

func TestBuild(t *testing.T) {
	testCases := []struct {
		name              string
		mapping           string
		expectedErr       string
		expectedPK        string
		expectedTimestamp string
		expectedDeleted   string
	}{
		{
			name:              "durable id wins over id",
			mapping:           "Id,1\nDurableId,1\nSystemModstamp,1\n",
			expectedPK:        "DurableId",
			expectedTimestamp: "SystemModstamp",
		},
		{
			name:              "falls back to LastModifiedDate",
			mapping:           "Id,1\nCreatedDate,1\nLastModifiedDate,1\n",
			expectedPK:        "Id",
			expectedTimestamp: "LastModifiedDate",
		},
		{
			name:              "falls back to CreatedDate without deleted flag",
			mapping:           "Id,1\nCreatedDate,1\nIsDeleted,0\n",
			expectedPK:        "Id",
			expectedTimestamp: "CreatedDate",
		},
		{
			name:        "no synchronized field",
			mapping:     "Id,0\nSystemModstamp,\n",
			expectedErr: "no field is selected for synchronization",
		},
		{
			name:        "field unknown to the remote",
			mapping:     "Id,1\nSystemModstamp,1\nBogus__c,1\n",
			expectedErr: "field Bogus__c is not present in the remote description",
		},
		{
			name:        "duplicate field",
			mapping:     "Id,1\nSystemModstamp,1\nId,0\n",
			expectedErr: "field Id is listed more than once",
		},
		{
			name:        "no primary key",
			mapping:     "Name,1\nSystemModstamp,1\n",
			expectedErr: "no primary key",
		},
		{
			name:        "no timestamp",
			mapping:     "Id,1\nName,1\n",
			expectedErr: "no change timestamp",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			entries, err := ParseMapping(strings.NewReader(tc.mapping))
			require.NoError(t, err)

			desc, err := Build("Account", entries, accountFields())

			if tc.expectedErr != "" {
				var cfgErr *ConfigurationError
				require.ErrorAs(t, err, &cfgErr)
				assert.Equal(t, "Account", cfgErr.Table)
				assert.ErrorContains(t, err, tc.expectedErr)
				assert.Nil(t, desc)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expectedPK, desc.PrimaryKeyField)
			assert.Equal(t, tc.expectedTimestamp, desc.TimestampField)
			assert.Equal(t, tc.expectedDeleted, desc.DeletedField)
		})
	}
}

func TestDirMappingSource_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := NewDirMappingSource(t.TempDir()).Load("Account")

		var cfgErr *ConfigurationError
		require.ErrorAs(t, err, &cfgErr)
		assert.ErrorIs(t, err, os.ErrNotExist)
		assert.Equal(t, "mapping file cannot be read", cfgErr.Reason)
	})

	t.Run("malformed include flag", func(t *testing.T) {
		dir := t.TempDir()
		writeMapping(t, dir, "Account", "Id,yes\n")

		_, err := NewDirMappingSource(dir).Load("Account")

		var cfgErr *ConfigurationError
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, "mapping file is malformed", cfgErr.Reason)
		assert.ErrorContains(t, err, `line 1: include column: expected 0, 1 or empty, got "yes"`)
	})

	t.Run("single column row", func(t *testing.T) {
		_, err := ParseMapping(strings.NewReader("FieldName,Import\nId\n"))

		assert.ErrorContains(t, err, "line 2: expected at least 2 columns, got 1")
	})
}
