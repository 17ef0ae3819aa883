package export

import (
	"encoding/json"
	"fmt"

	"github.com/sorrow233/flowsync/internal/crdt"
)

// DocStateVersion is the current private document state format version.
const DocStateVersion = "1"

// DocState is the full private form of a document, persisted between CLI
// invocations. Unlike Snapshot it carries every sequence and map in the
// document, including the ones only the legacy migration writes, so
// migrated data survives a process restart.
type DocState struct {
	Version   string                             `json:"version"`
	Sequences map[string][]map[string]crdt.Value `json:"sequences"`
	Maps      map[string]map[string]crdt.Value   `json:"maps"`
}

// CaptureState snapshots every container of the document.
func CaptureState(doc *crdt.Doc) *DocState {
	st := &DocState{
		Version:   DocStateVersion,
		Sequences: make(map[string][]map[string]crdt.Value),
		Maps:      make(map[string]map[string]crdt.Value),
	}
	for _, name := range doc.SeqNames() {
		st.Sequences[name] = doc.SeqRecords(name)
	}
	for _, name := range doc.MapNames() {
		if m := doc.MapSnapshot(name); len(m) > 0 {
			st.Maps[name] = m
		}
	}
	return st
}

// EncodeState serializes a captured state.
func EncodeState(st *DocState) ([]byte, error) {
	raw, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("encode document state: %w", err)
	}
	return raw, nil
}

// DecodeState parses a persisted state blob.
func DecodeState(raw []byte) (*DocState, error) {
	var st DocState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("decode document state: %w", err)
	}
	if st.Version != DocStateVersion {
		return nil, fmt.Errorf("unsupported document state version %q", st.Version)
	}
	return &st, nil
}

// RestoreState replaces the document's containers with the captured
// state. Each sequence is restored in one transaction; map entries not
// present in the state are removed.
func RestoreState(doc *crdt.Doc, st *DocState) error {
	for name, recs := range st.Sequences {
		err := doc.Transact(crdt.OriginLocal, func(tx *crdt.Txn) error {
			tx.ClearSeq(name)
			for _, rec := range recs {
				tx.InsertRecord(name, tx.Len(name), rec)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("restore sequence %s: %w", name, err)
		}
	}
	for name, entries := range st.Maps {
		existing := doc.MapSnapshot(name)
		err := doc.Transact(crdt.OriginLocal, func(tx *crdt.Txn) error {
			for key := range existing {
				if _, ok := entries[key]; !ok {
					tx.DeleteMapKey(name, key)
				}
			}
			for key, v := range entries {
				tx.SetMapKey(name, key, v)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("restore map %s: %w", name, err)
		}
	}
	return nil
}
