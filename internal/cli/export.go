package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sorrow233/flowsync/internal/export"
)

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "export [file]",
		Short:         "Write a snapshot of the document to a file or stdout",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return runExport(rootOpts, path, cmd)
		},
	}
}

func runExport(opts *RootOptions, path string, cmd *cobra.Command) error {
	a, closeApp, err := openApp(opts)
	if err != nil {
		return err
	}
	defer closeApp()

	snap := export.Export(a.handle.Doc(), time.Now())
	raw, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return WrapExitError(ExitCommandError, "encode snapshot", err)
	}
	raw = append(raw, '\n')

	if path == "" {
		_, err = cmd.OutOrStdout().Write(raw)
		return err
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return WrapExitError(ExitCommandError, "write snapshot", err)
	}

	total := len(snap.Data.PendingProjects) + len(snap.Data.PrimaryProjects) +
		len(snap.Data.Commands) + len(snap.Data.CustomCategories)
	return newFormatter(opts, cmd).Success(
		map[string]any{"file": path, "records": total},
		fmt.Sprintf("exported %d records to %s", total, path),
	)
}
