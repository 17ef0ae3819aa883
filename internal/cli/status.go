package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sorrow233/flowsync/internal/export"
)

// StatusReport is the status command payload.
type StatusReport struct {
	DocumentID string         `json:"documentId"`
	Connection string         `json:"connection"`
	PendingOps int            `json:"pendingOps"`
	Sequences  map[string]int `json:"sequences"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "status",
		Short:         "Show document contents and connection status",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(rootOpts, cmd)
		},
	}
}

func runStatus(opts *RootOptions, cmd *cobra.Command) error {
	a, closeApp, err := openApp(opts)
	if err != nil {
		return err
	}
	defer closeApp()

	doc := a.handle.Doc()
	report := StatusReport{
		DocumentID: doc.ID(),
		Connection: a.handle.Status().String(),
		PendingOps: a.handle.PendingOps(),
		Sequences: map[string]int{
			export.SeqPendingProjects:  doc.SeqLen(export.SeqPendingProjects),
			export.SeqPrimaryProjects:  doc.SeqLen(export.SeqPrimaryProjects),
			export.SeqCommands:         doc.SeqLen(export.SeqCommands),
			export.SeqCustomCategories: doc.SeqLen(export.SeqCustomCategories),
		},
	}

	var b strings.Builder
	fmt.Fprintf(&b, "document:   %s\n", report.DocumentID)
	fmt.Fprintf(&b, "connection: %s\n", report.Connection)
	fmt.Fprintf(&b, "pending:    %d\n", report.PendingOps)
	for _, name := range []string{
		export.SeqPendingProjects,
		export.SeqPrimaryProjects,
		export.SeqCommands,
		export.SeqCustomCategories,
	} {
		fmt.Fprintf(&b, "%-18s %d records\n", name+":", report.Sequences[name])
	}

	return newFormatter(opts, cmd).Success(report, strings.TrimRight(b.String(), "\n"))
}
