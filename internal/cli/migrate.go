package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sorrow233/flowsync/internal/migrate"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		version   string
		onboarded bool
	)

	cmd := &cobra.Command{
		Use:           "migrate",
		Short:         "Run the one-shot legacy data migration",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(rootOpts, version, onboarded, cmd)
		},
	}
	cmd.Flags().StringVar(&version, "version", "v1", "migration generation")
	cmd.Flags().BoolVar(&onboarded, "onboarded", false, "skip default template seeding")
	return cmd
}

func runMigrate(opts *RootOptions, version string, onboarded bool, cmd *cobra.Command) error {
	a, closeApp, err := openApp(opts)
	if err != nil {
		return err
	}
	defer closeApp()

	mgr := &migrate.Manager{Store: a.store}
	report, err := mgr.Run(a.handle.Doc(), version, onboarded)
	if err != nil {
		return WrapExitError(ExitFailure, "migration", err)
	}

	var b strings.Builder
	switch {
	case report.Skipped:
		fmt.Fprintf(&b, "migration %s already complete", version)
	case len(report.Migrated) == 0 && report.ContentKeys == 0:
		fmt.Fprintf(&b, "migration %s complete, no legacy data found", version)
	default:
		fmt.Fprintf(&b, "migration %s complete", version)
		for seq, n := range report.Migrated {
			fmt.Fprintf(&b, "\n  %s: %d records", seq, n)
		}
		if report.ContentKeys > 0 {
			fmt.Fprintf(&b, "\n  document contents: %d entries", report.ContentKeys)
		}
	}
	if report.Seeded {
		fmt.Fprintf(&b, "\nseeded default template")
	}

	return newFormatter(opts, cmd).Success(report, b.String())
}
