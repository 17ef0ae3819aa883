package migrate

import (
	"fmt"
	"log/slog"

	"github.com/sorrow233/flowsync/internal/crdt"
	"github.com/sorrow233/flowsync/internal/export"
)

// seedSeqs are the sequences that must all be empty before seeding.
var seedSeqs = []string{
	export.SeqPendingProjects,
	export.SeqPrimaryProjects,
	export.SeqCommands,
	export.SeqCustomCategories,
}

// maybeSeed writes the default template on first run. Guarded by its own
// marker, and skipped entirely for onboarded users or non-empty documents.
// A device coming online mid-onboarding can still race the emptiness
// check; that window is accepted.
func (m *Manager) maybeSeed(doc *crdt.Doc, onboarded bool, report *Report) error {
	seeded, err := m.Store.HasMarker(seedMarkerKey)
	if err != nil {
		return fmt.Errorf("read seed marker: %w", err)
	}
	if seeded || onboarded {
		return nil
	}
	if !doc.IsEmpty(seedSeqs...) {
		return nil
	}

	err = doc.Transact(crdt.OriginLocal, func(tx *crdt.Txn) error {
		categories := []map[string]crdt.Value{
			{"id": m.newID(), "name": "General", "color": "#4a90d9"},
			{"id": m.newID(), "name": "Deploy", "color": "#d94a4a"},
		}
		for _, c := range categories {
			tx.InsertRecord(export.SeqCustomCategories, tx.Len(export.SeqCustomCategories), c)
		}
		commands := []map[string]crdt.Value{
			{"id": m.newID(), "title": "Welcome to FlowSync", "category": "General", "pinned": true},
			{"id": m.newID(), "title": "Create your first project", "category": "General"},
		}
		for _, c := range commands {
			tx.InsertRecord(export.SeqCommands, tx.Len(export.SeqCommands), c)
		}
		tx.InsertRecord(export.SeqPendingProjects, 0, map[string]crdt.Value{
			"id":    m.newID(),
			"name":  "Getting started",
			"stage": "pending",
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("seed default template: %w", err)
	}

	if err := m.Store.PutMarker(seedMarkerKey); err != nil {
		return fmt.Errorf("write seed marker: %w", err)
	}
	report.Seeded = true
	slog.Info("default template seeded")
	return nil
}
