package configprint

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm-sync/internal/config"
)

func testConfig() config.Config {
	return config.Config{
		ID:          "crm-sync-test",
		Concurrency: 2,
		Tables:      []string{"Account"},
		Postgres:    config.Postgres{Address: "localhost", Port: 5432, Username: "sync", Password: "secret"},
		Salesforce:  config.Salesforce{Username: "api@example.com", Password: "hunter2", ClientSecret: "shh"},
		Sync:        config.Sync{WatermarkStrategy: config.WatermarkMirrorMax, MaxConsecutiveFailures: 3},
	}
}

func TestGetSection(t *testing.T) {
	cfg := testConfig().Redacted()

	whole, err := getSection(cfg, "")
	require.NoError(t, err)
	assert.Equal(t, cfg, whole)

	tables, err := getSection(cfg, "tables")
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"tables": {"Account"}}, tables)

	_, err = getSection(cfg, "vault")
	assert.ErrorContains(t, err, "unknown section: vault")
}

func TestWrite(t *testing.T) {
	section, err := getSection(testConfig().Redacted(), "postgres")
	require.NoError(t, err)

	t.Run("json masks secrets", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, write(&out, section, "json"))

		var decoded map[string]any
		require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
		assert.Equal(t, "xxxxx", decoded["password"])
		assert.Equal(t, "localhost", decoded["address"])
	})

	t.Run("yaml", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, write(&out, section, "yaml"))
		assert.Contains(t, out.String(), "xxxxx")
		assert.NotContains(t, out.String(), "secret")
	})

	t.Run("unsupported format", func(t *testing.T) {
		assert.ErrorContains(t, write(&bytes.Buffer{}, section, "toml"), "unsupported format: toml")
	})
}
