// Package export is the shared snapshot codec: manual export, scheduled
// backup, and restore all produce and consume the same shape.
package export

import (
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/sorrow233/flowsync/internal/crdt"
)

// SnapshotVersion is the current snapshot format version.
const SnapshotVersion = "1.0"

// Stable sequence identifiers inside the CRDT document. The collection
// façade is agnostic to which name it is bound to; these constants are the
// single source of truth for callers.
const (
	SeqPendingProjects  = "pendingProjects"
	SeqPrimaryProjects  = "primaryProjects"
	SeqCommands         = "commands"
	SeqCustomCategories = "customCategories"
)

// Sequences and maps consumed only by the writing-feature migration.
const (
	SeqDocuments     = "documents"
	SeqDocFolders    = "docFolders"
	SeqDocCategories = "docCategories"
	MapDocContents   = "docContents"
)

// Snapshot is the wire shape of an export.
type Snapshot struct {
	Version    string `json:"version"`
	ExportedAt string `json:"exportedAt"`
	Data       Data   `json:"data"`
}

// Data holds the exported sequences.
type Data struct {
	PendingProjects  []map[string]crdt.Value `json:"pendingProjects"`
	PrimaryProjects  []map[string]crdt.Value `json:"primaryProjects"`
	Commands         []map[string]crdt.Value `json:"commands"`
	CustomCategories []map[string]crdt.Value `json:"customCategories"`
}

// Export snapshots the document's exported sequences at the given time.
// Strings are NFC-normalized so snapshots are byte-stable across platforms.
func Export(doc *crdt.Doc, now time.Time) *Snapshot {
	return &Snapshot{
		Version:    SnapshotVersion,
		ExportedAt: now.UTC().Format(time.RFC3339),
		Data: Data{
			PendingProjects:  exportSeq(doc, SeqPendingProjects),
			PrimaryProjects:  exportSeq(doc, SeqPrimaryProjects),
			Commands:         exportSeq(doc, SeqCommands),
			CustomCategories: exportSeq(doc, SeqCustomCategories),
		},
	}
}

func exportSeq(doc *crdt.Doc, name string) []map[string]crdt.Value {
	recs := doc.SeqRecords(name)
	out := make([]map[string]crdt.Value, 0, len(recs))
	for _, r := range recs {
		out = append(out, normalizeStrings(r).(map[string]crdt.Value))
	}
	return out
}

// normalizeStrings rewrites every string in v to NFC, in place. SeqRecords
// hands out deep copies, so mutating here never aliases document state.
func normalizeStrings(v crdt.Value) crdt.Value {
	switch x := v.(type) {
	case string:
		return norm.NFC.String(x)
	case []crdt.Value:
		for i := range x {
			x[i] = normalizeStrings(x[i])
		}
		return x
	case map[string]crdt.Value:
		for k, e := range x {
			x[k] = normalizeStrings(e)
		}
		return x
	default:
		return v
	}
}
