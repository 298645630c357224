package catalog_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/metascaler/internal/catalog"
	"github.com/JonMunkholm/metascaler/internal/config"
	"github.com/JonMunkholm/metascaler/internal/core"
)

const fixtureYAML = `
assets:
  - id: col-1
    name: customer_id
    type: Column
    description: old
  - id: col-2
    name: ambiguous_col
    type: Column
  - id: tbl-1
    name: ambiguous_col
    type: Table
  - id: col-3
    name: retired
    type: Column
    status: DELETED
custom_metadata:
  Data Governance: [Business Owner, Steward]
`

func loadFixture(t *testing.T) *catalog.Memory {
	t.Helper()
	m, err := catalog.ParseFixture([]byte(fixtureYAML))
	require.NoError(t, err)
	return m
}

func TestMemory_FindByExactName(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	m := loadFixture(t)

	tests := []struct {
		name   string
		types  []string
		expect []string
	}{
		{"customer_id", nil, []string{"col-1"}},
		{"Customer_ID", nil, nil},
		{"ambiguous_col", nil, []string{"col-2", "tbl-1"}},
		{"ambiguous_col", []string{"table"}, []string{"tbl-1"}},
		{"retired", nil, nil},
		{"missing", nil, nil},
	}
	for _, tt := range tests {
		ids, err := m.FindByExactName(ctx, tt.name, tt.types)
		assert.NoError(err)
		assert.Equal(tt.expect, ids, "name %q types %v", tt.name, tt.types)
	}
}

func TestMemory_ApplyChangeSet(t *testing.T) {
	assert := assert.New(t)
	m := loadFixture(t)

	cs := &core.ChangeSet{
		AssetID: "col-1",
		Standard: core.StandardUpdates{
			UserOwners:  []string{"jane"},
			Certificate: core.CertificateVerified,
		},
		Custom: map[string]map[string]string{"Data Governance": {"Business Owner": "Jane Smith"}},
	}
	require.NoError(t, m.ApplyChangeSet(context.Background(), cs))

	a, ok := m.Asset("col-1")
	require.True(t, ok)
	assert.Equal("old", a.Description, "omitted attributes are left alone")
	assert.Equal([]string{"jane"}, a.UserOwners)
	assert.Equal("VERIFIED", a.Certificate)
	assert.Equal("Jane Smith", a.Custom["Data Governance"]["Business Owner"])
	assert.Len(m.Applied(), 1)
}

func TestMemory_ApplyChangeSetRejects(t *testing.T) {
	tests := []struct {
		name string
		cs   *core.ChangeSet
	}{
		{"unknown asset", &core.ChangeSet{AssetID: "nope", Standard: core.StandardUpdates{Description: "d"}}},
		{"unknown set", &core.ChangeSet{AssetID: "col-1", Custom: map[string]map[string]string{"Privacy": {"PII": "yes"}}}},
		{"unknown field", &core.ChangeSet{AssetID: "col-1", Custom: map[string]map[string]string{"Data Governance": {"Tier": "1"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := loadFixture(t)
			err := m.ApplyChangeSet(context.Background(), tt.cs)

			var me *core.MutationError
			require.True(t, errors.As(err, &me), "error %v is not a MutationError", err)
			assert.Equal(t, core.MutationRejected, me.Kind)
			assert.Equal(t, "CAT003", core.MapError(err).Code)
			assert.Empty(t, m.Applied())

			a, _ := m.Asset("col-1")
			assert.Equal(t, "old", a.Description)
		})
	}
}

func TestMemory_DuplicateID(t *testing.T) {
	_, err := catalog.NewMemory(catalog.Fixture{Assets: []catalog.FixtureAsset{
		{ID: "a", Name: "x"},
		{ID: "a", Name: "y"},
	}})
	assert.Error(t, err)
}

func TestLoadFixture(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fixtureYAML), 0o600))

	m, err := catalog.LoadFixture(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Data Governance"}, m.Sets())

	_, err = catalog.LoadFixture(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

// The full pipeline against the fixture catalog: a live run followed by a
// dry run of the same file.
func TestMemory_ServiceRoundTrip(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	m := loadFixture(t)
	cfg := &config.Config{}
	cfg.Catalog.AssetTypes = []string{"Column", "Table", "View"}
	cfg.Run.Workers = 2
	cfg.Run.Retention = time.Minute
	svc := core.NewService(m, nil, cfg)

	file := []byte("name,certificate,Data Governance::Business Owner,Data Governance::Tier\n" +
		"customer_id,verified,Jane Smith,\n" +
		"ambiguous_col,draft,,\n" +
		"retired,draft,,\n" +
		"customer_id,,,Gold\n")

	live, err := svc.Run(ctx, core.RunRequest{FileName: "ref.csv", Data: file})
	require.NoError(err)

	statuses := make([]core.Status, len(live.Outcomes))
	for i, o := range live.Outcomes {
		statuses[i] = o.Status
	}
	assert.Equal([]core.Status{
		core.StatusApplied,
		core.StatusSkippedAmbiguous,
		core.StatusSkippedNoMatch,
		core.StatusFailed,
	}, statuses)
	assert.Equal("CAT003", live.Outcomes[3].ErrorCode)

	a, _ := m.Asset("col-1")
	assert.Equal("VERIFIED", a.Certificate)

	dry, err := svc.Run(ctx, core.RunRequest{FileName: "ref.csv", Data: file, DryRun: true})
	require.NoError(err)
	// Schema checks happen in the catalog, so both customer_id rows would apply.
	assert.Equal(2, dry.Counts.WouldApply)
	assert.Len(m.Applied(), 1, "dry run must not mutate")
}
