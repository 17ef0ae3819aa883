package export

import (
	"fmt"
	"log/slog"

	"github.com/sorrow233/flowsync/internal/crdt"
)

// Mode selects how Import treats existing destination records.
type Mode string

const (
	// ModeMerge inserts only records whose id is not already present.
	ModeMerge Mode = "merge"
	// ModeReplace clears each destination sequence before inserting.
	ModeReplace Mode = "replace"
)

// ParseMode converts a CLI flag value into a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeMerge, ModeReplace:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown import mode %q (want %q or %q)", s, ModeMerge, ModeReplace)
	}
}

// Import writes the snapshot's sequences into the document. Each sequence
// is imported in a single transaction, so subscribers see at most one
// event per sequence.
func Import(doc *crdt.Doc, snap *Snapshot, mode Mode) error {
	if mode != ModeMerge && mode != ModeReplace {
		return fmt.Errorf("unknown import mode %q", mode)
	}
	for _, seq := range []struct {
		name string
		recs []map[string]crdt.Value
	}{
		{SeqPendingProjects, snap.Data.PendingProjects},
		{SeqPrimaryProjects, snap.Data.PrimaryProjects},
		{SeqCommands, snap.Data.Commands},
		{SeqCustomCategories, snap.Data.CustomCategories},
	} {
		if err := importSeq(doc, seq.name, seq.recs, mode); err != nil {
			return fmt.Errorf("import %s: %w", seq.name, err)
		}
	}
	return nil
}

func importSeq(doc *crdt.Doc, name string, recs []map[string]crdt.Value, mode Mode) error {
	if mode == ModeMerge && len(recs) == 0 {
		return nil
	}

	existing := make(map[string]bool)
	if mode == ModeMerge {
		for _, r := range doc.SeqRecords(name) {
			if id, ok := r["id"].(string); ok {
				existing[id] = true
			}
		}
	}

	inserted := 0
	err := doc.Transact(crdt.OriginLocal, func(tx *crdt.Txn) error {
		if mode == ModeReplace {
			tx.ClearSeq(name)
		}
		for _, rec := range recs {
			if mode == ModeMerge {
				id, ok := rec["id"].(string)
				if !ok || existing[id] {
					continue
				}
				existing[id] = true
			}
			tx.InsertRecord(name, tx.Len(name), rec)
			inserted++
		}
		return nil
	})
	if err != nil {
		return err
	}
	slog.Debug("imported sequence", "sequence", name, "mode", string(mode), "inserted", inserted)
	return nil
}
