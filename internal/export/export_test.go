package export

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sorrow233/flowsync/internal/crdt"
)

func seed(t *testing.T, doc *crdt.Doc, seq string, recs ...map[string]crdt.Value) {
	t.Helper()
	require.NoError(t, doc.Transact(crdt.OriginLocal, func(tx *crdt.Txn) error {
		for _, r := range recs {
			tx.InsertRecord(seq, tx.Len(seq), r)
		}
		return nil
	}))
}

func TestExport_GoldenSnapshotShape(t *testing.T) {
	doc := crdt.NewDoc("doc-test", "actor-a")
	seed(t, doc, SeqPendingProjects,
		map[string]crdt.Value{"id": "p-1", "name": "Alpha", "stage": "pending"})
	seed(t, doc, SeqCommands,
		// NFD input; the exported string must come out NFC.
		map[string]crdt.Value{"id": "cmd-1", "title": "Deploy résumé"},
		map[string]crdt.Value{"id": "cmd-2", "pinned": true, "title": "Rollback"})
	seed(t, doc, SeqCustomCategories,
		map[string]crdt.Value{"color": "#ff0000", "id": "cat-1", "name": "Ops"})

	snap := Export(doc, time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC))

	raw, err := json.MarshalIndent(snap, "", "  ")
	require.NoError(t, err)
	raw = append(raw, '\n')

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "snapshot", raw)
}

func TestExport_EmptyDocumentHasEmptyArrays(t *testing.T) {
	doc := crdt.NewDoc("doc-test", "actor-a")
	snap := Export(doc, time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC))

	assert.Equal(t, SnapshotVersion, snap.Version)
	assert.Equal(t, "2025-01-02T03:04:05Z", snap.ExportedAt)

	raw, err := json.Marshal(snap.Data)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"pendingProjects":[],"primaryProjects":[],"commands":[],"customCategories":[]}`,
		string(raw), "absent sequences export as empty arrays, not null")
}

func TestExport_TimestampConvertsToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*3600)
	doc := crdt.NewDoc("doc-test", "actor-a")

	snap := Export(doc, time.Date(2025, 1, 2, 11, 4, 5, 0, loc))
	assert.Equal(t, "2025-01-02T03:04:05Z", snap.ExportedAt)
}

func TestValidate_AcceptsMinimalSnapshot(t *testing.T) {
	assert.Empty(t, Validate([]byte(`{"version":"1.0","data":{}}`)))
}

func TestValidate_AcceptsFullSnapshot(t *testing.T) {
	doc := crdt.NewDoc("doc-test", "actor-a")
	seed(t, doc, SeqCommands, map[string]crdt.Value{"id": "c1"})

	raw, err := json.Marshal(Export(doc, time.Now()))
	require.NoError(t, err)
	assert.Empty(t, Validate(raw))
}

func TestValidate_RejectsBadShapes(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{"version":`},
		{"top level array", `[]`},
		{"missing version", `{"data":{}}`},
		{"missing data", `{"version":"1.0"}`},
		{"data not object", `{"version":"1.0","data":[]}`},
		{"commands not array", `{"version":"1.0","data":{"commands":"oops"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			problems := Validate([]byte(tt.raw))
			require.NotEmpty(t, problems)
			for _, p := range problems {
				assert.NotEmpty(t, p)
			}
		})
	}
}

func TestValidate_ReportsViolationLocation(t *testing.T) {
	problems := Validate([]byte(`{"version":"1.0","data":{"commands":42}}`))
	require.Len(t, problems, 1)
	assert.Contains(t, problems[0], "/data/commands")
}

func TestDecode_RoundTrip(t *testing.T) {
	raw := []byte(`{"version":"1.0","exportedAt":"2025-01-02T03:04:05Z","data":{"commands":[{"id":"c1"}]}}`)
	snap, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "1.0", snap.Version)
	require.Len(t, snap.Data.Commands, 1)
	assert.Equal(t, "c1", snap.Data.Commands[0]["id"])

	_, err = Decode([]byte(`{`))
	assert.Error(t, err)
}
