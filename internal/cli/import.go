package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sorrow233/flowsync/internal/export"
)

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:           "import <file>",
		Short:         "Import a snapshot file into the document",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(rootOpts, args[0], mode, cmd)
		},
	}
	cmd.Flags().StringVar(&mode, "mode", string(export.ModeMerge), "import mode (merge|replace)")
	return cmd
}

func runImport(opts *RootOptions, path, modeFlag string, cmd *cobra.Command) error {
	m, err := export.ParseMode(modeFlag)
	if err != nil {
		return WrapExitError(ExitCommandError, "bad --mode", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "read snapshot", err)
	}

	formatter := newFormatter(opts, cmd)
	if problems := export.Validate(raw); len(problems) > 0 {
		if err := formatter.Error("snapshot failed validation", problems); err != nil {
			return err
		}
		return WrapExitError(ExitFailure, "snapshot failed validation", nil)
	}

	snap, err := export.Decode(raw)
	if err != nil {
		return WrapExitError(ExitCommandError, "decode snapshot", err)
	}

	a, closeApp, err := openApp(opts)
	if err != nil {
		return err
	}
	defer closeApp()

	if err := export.Import(a.handle.Doc(), snap, m); err != nil {
		return WrapExitError(ExitFailure, "import snapshot", err)
	}

	return formatter.Success(
		map[string]any{"file": path, "mode": string(m)},
		fmt.Sprintf("imported %s (mode=%s)", path, m),
	)
}
