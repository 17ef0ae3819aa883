package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sorrow233/flowsync/internal/backup"
)

func (a *app) backupService() *backup.Service {
	return backup.New(a.store,
		backup.WithMinSpacing(a.cfg.Backup.MinSpacing.Std()),
		backup.WithRetention(a.cfg.Backup.Retention.Std()),
		backup.WithInterval(a.cfg.Backup.Interval.Std()),
		backup.WithFirstDelay(a.cfg.Backup.FirstDelay.Std()),
	)
}

// NewBackupCommand creates the backup command.
func NewBackupCommand(rootOpts *RootOptions) *cobra.Command {
	var list bool

	cmd := &cobra.Command{
		Use:           "backup",
		Short:         "Take a backup now, or list retained backups",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackup(rootOpts, list, cmd)
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "list retained backups instead of writing one")
	return cmd
}

func runBackup(opts *RootOptions, list bool, cmd *cobra.Command) error {
	a, closeApp, err := openApp(opts)
	if err != nil {
		return err
	}
	defer closeApp()

	svc := a.backupService()
	if !list {
		if err := svc.MaybeBackup(a.handle, true); err != nil {
			return WrapExitError(ExitFailure, "backup", err)
		}
	}

	hist, err := svc.History()
	if err != nil {
		return WrapExitError(ExitFailure, "read backup history", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d retained backups", len(hist.Backups))
	for i, rec := range hist.Backups {
		fmt.Fprintf(&b, "\n%3d  %s", i, time.UnixMilli(rec.Timestamp).UTC().Format(time.RFC3339))
	}

	return newFormatter(opts, cmd).Success(hist, b.String())
}
