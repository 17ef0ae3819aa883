package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sorrow233/flowsync/internal/export"
)

// NewRestoreCommand creates the restore command.
func NewRestoreCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		index int
		mode  string
		apply bool
	)

	cmd := &cobra.Command{
		Use:           "restore",
		Short:         "Preview or apply a retained backup",
		Long:          "Previews the selected backup by default; pass --apply to import it.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRestore(rootOpts, index, mode, apply, cmd)
		},
	}
	cmd.Flags().IntVar(&index, "index", -1, "backup index as shown by 'backup --list' (default: newest)")
	cmd.Flags().StringVar(&mode, "mode", string(export.ModeReplace), "import mode when applying (merge|replace)")
	cmd.Flags().BoolVar(&apply, "apply", false, "import the backup instead of previewing it")
	return cmd
}

func runRestore(opts *RootOptions, index int, modeFlag string, apply bool, cmd *cobra.Command) error {
	m, err := export.ParseMode(modeFlag)
	if err != nil {
		return WrapExitError(ExitCommandError, "bad --mode", err)
	}

	a, closeApp, err := openApp(opts)
	if err != nil {
		return err
	}
	defer closeApp()

	svc := a.backupService()
	hist, err := svc.History()
	if err != nil {
		return WrapExitError(ExitFailure, "read backup history", err)
	}
	if len(hist.Backups) == 0 {
		return WrapExitError(ExitFailure, "no backups retained", nil)
	}
	if index < 0 {
		index = len(hist.Backups) - 1
	}
	if index >= len(hist.Backups) {
		return WrapExitError(ExitCommandError,
			fmt.Sprintf("backup index %d out of range (have %d)", index, len(hist.Backups)), nil)
	}

	rec := hist.Backups[index]
	snap, err := svc.PreviewRestore(rec)
	if err != nil {
		return WrapExitError(ExitFailure, "backup is not restorable", err)
	}

	total := len(snap.Data.PendingProjects) + len(snap.Data.PrimaryProjects) +
		len(snap.Data.Commands) + len(snap.Data.CustomCategories)
	taken := time.UnixMilli(rec.Timestamp).UTC().Format(time.RFC3339)
	formatter := newFormatter(opts, cmd)

	if !apply {
		return formatter.Success(
			map[string]any{"index": index, "takenAt": taken, "records": total},
			fmt.Sprintf("backup %d taken at %s holds %d records (pass --apply to restore)", index, taken, total),
		)
	}

	if err := export.Import(a.handle.Doc(), snap, m); err != nil {
		return WrapExitError(ExitFailure, "restore backup", err)
	}
	return formatter.Success(
		map[string]any{"index": index, "takenAt": taken, "records": total, "mode": string(m)},
		fmt.Sprintf("restored backup %d from %s (mode=%s)", index, taken, m),
	)
}
