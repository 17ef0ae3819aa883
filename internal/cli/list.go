package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sorrow233/flowsync/internal/collection"
)

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list <sequence>",
		Short:         "List the records of one sequence",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(rootOpts, args[0], cmd)
		},
	}
}

func runList(opts *RootOptions, seq string, cmd *cobra.Command) error {
	a, closeApp, err := openApp(opts)
	if err != nil {
		return err
	}
	defer closeApp()

	col := collection.Open(a.handle.Doc(), seq)
	recs := col.List()

	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d records", seq, len(recs))
	for i, rec := range recs {
		label, _ := rec["title"].(string)
		if label == "" {
			label, _ = rec["name"].(string)
		}
		id, _ := rec["id"].(string)
		fmt.Fprintf(&b, "\n%3d  %-36s %s", i, id, label)
	}

	return newFormatter(opts, cmd).Success(recs, b.String())
}
