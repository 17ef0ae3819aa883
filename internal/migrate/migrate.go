// Package migrate runs one-shot migrations of legacy client data into the
// CRDT document, plus first-run seeding of the default template. Every
// migration generation is guarded by a persisted marker, and dedup against
// the destination makes retries safe even without the marker.
package migrate

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/sorrow233/flowsync/internal/crdt"
	"github.com/sorrow233/flowsync/internal/export"
	"github.com/sorrow233/flowsync/internal/localstore"
)

// Legacy storage keys, written by clients before the CRDT store existed.
const (
	keyLegacyPendingProjects  = "legacy:pendingProjects"
	keyLegacyPrimaryProjects  = "legacy:primaryProjects"
	keyLegacyCommands         = "legacy:commands"
	keyLegacyCustomCategories = "legacy:customCategories"
	keyLegacyDocuments        = "legacy:documents"
	keyLegacyDocFolders       = "legacy:docFolders"
	keyLegacyDocCategories    = "legacy:docCategories"
	keyLegacyDocContents      = "legacy:docContents"
)

const seedMarkerKey = "marker:default-template-seeded"

func markerKey(version string) string {
	return "marker:migration-" + version
}

// source maps one legacy blob onto one destination sequence.
type source struct {
	key string
	seq string
}

var sources = []source{
	{keyLegacyPendingProjects, export.SeqPendingProjects},
	{keyLegacyPrimaryProjects, export.SeqPrimaryProjects},
	{keyLegacyCommands, export.SeqCommands},
	{keyLegacyCustomCategories, export.SeqCustomCategories},
	{keyLegacyDocuments, export.SeqDocuments},
	{keyLegacyDocFolders, export.SeqDocFolders},
	{keyLegacyDocCategories, export.SeqDocCategories},
}

// Manager runs migrations against one localstore.
type Manager struct {
	Store *localstore.Store
	// IDs generates ids for legacy plain values that carry none.
	// Defaults to UUIDv7.
	IDs func() string
}

// Report summarizes one Run.
type Report struct {
	// Skipped is true when the versioned marker was already set and
	// nothing ran.
	Skipped bool
	// Migrated counts inserted records per destination sequence.
	Migrated map[string]int
	// ContentKeys counts migrated per-document content entries.
	ContentKeys int
	// Seeded is true when the default template was written.
	Seeded bool
}

func (m *Manager) newID() string {
	if m.IDs != nil {
		return m.IDs()
	}
	return uuid.Must(uuid.NewV7()).String()
}

// Run migrates every legacy source into doc, then seeds the default
// template on first run. Migration is best-effort: a malformed source is
// logged and skipped, the others proceed. version names the migration
// generation; onboarded suppresses seeding for users who predate the
// template.
func (m *Manager) Run(doc *crdt.Doc, version string, onboarded bool) (Report, error) {
	report := Report{Migrated: make(map[string]int)}

	done, err := m.Store.HasMarker(markerKey(version))
	if err != nil {
		return report, fmt.Errorf("read migration marker: %w", err)
	}
	if done {
		report.Skipped = true
		return report, m.maybeSeed(doc, onboarded, &report)
	}

	slog.Info("migration starting", "version", version)
	for _, src := range sources {
		n, err := m.migrateSource(doc, src.key, src.seq)
		if err != nil {
			slog.Warn("legacy source skipped", "key", src.key, "error", err)
			continue
		}
		if n > 0 {
			report.Migrated[src.seq] = n
		}
	}
	if n, err := m.migrateDocContents(doc); err != nil {
		slog.Warn("legacy source skipped", "key", keyLegacyDocContents, "error", err)
	} else {
		report.ContentKeys = n
	}

	if err := m.Store.PutMarker(markerKey(version)); err != nil {
		return report, fmt.Errorf("write migration marker: %w", err)
	}
	slog.Info("migration complete", "version", version, "sequences", len(report.Migrated))

	return report, m.maybeSeed(doc, onboarded, &report)
}

// migrateSource moves one legacy blob into its destination sequence.
// Records missing an id, and records whose id already exists in the
// destination, are dropped. The whole source lands in one transaction.
func (m *Manager) migrateSource(doc *crdt.Doc, key, seq string) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	raw, ok, err := m.Store.Get(key)
	if err != nil {
		return 0, err
	}
	if !ok || len(raw) == 0 {
		return 0, nil
	}

	var entries []any
	if err := json.Unmarshal(raw, &entries); err != nil {
		return 0, fmt.Errorf("parse: %w", err)
	}

	existing := make(map[string]bool)
	for _, r := range doc.SeqRecords(seq) {
		if id, ok := r["id"].(string); ok {
			existing[id] = true
		}
	}

	err = doc.Transact(crdt.OriginLocal, func(tx *crdt.Txn) error {
		for _, entry := range entries {
			rec := m.normalizeEntry(entry)
			if rec == nil {
				continue
			}
			id, ok := rec["id"].(string)
			if !ok || id == "" || existing[id] {
				continue
			}
			existing[id] = true
			tx.InsertRecord(seq, tx.Len(seq), rec)
			n++
		}
		return nil
	})
	return n, err
}

// normalizeEntry converts a legacy entry into a map-typed record. Older
// clients stored bare strings in some collections; those become records at
// ingestion so the runtime never branches on shape again.
func (m *Manager) normalizeEntry(entry any) map[string]crdt.Value {
	switch v := entry.(type) {
	case map[string]any:
		rec := make(map[string]crdt.Value, len(v))
		for k, val := range v {
			rec[k] = val
		}
		return rec
	case string:
		if v == "" {
			return nil
		}
		return map[string]crdt.Value{"id": m.newID(), "text": v}
	default:
		return nil
	}
}

// migrateDocContents moves the legacy per-document content object into the
// document content map. Existing keys are never overwritten.
func (m *Manager) migrateDocContents(doc *crdt.Doc) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	raw, ok, err := m.Store.Get(keyLegacyDocContents)
	if err != nil {
		return 0, err
	}
	if !ok || len(raw) == 0 {
		return 0, nil
	}

	var contents map[string]any
	if err := json.Unmarshal(raw, &contents); err != nil {
		return 0, fmt.Errorf("parse: %w", err)
	}

	existing := doc.MapSnapshot(export.MapDocContents)
	err = doc.Transact(crdt.OriginLocal, func(tx *crdt.Txn) error {
		for docID, content := range contents {
			if _, exists := existing[docID]; exists {
				continue
			}
			tx.SetMapKey(export.MapDocContents, docID, content)
			n++
		}
		return nil
	})
	return n, err
}
