package cli

import (
	"github.com/spf13/cobra"
)

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "query <definition> <root>",
		Short: "Execute a root of a stored definition",
		Long: `Execute one root of a stored definition and print its rows.

The root is a node alias declared as a graph root, or a graph name
(which runs that graph's first root). Rows print as an aligned table,
as CSV with --format csv, or as canonical JSON arrays with --format json.

Exit codes:
  0 - Query succeeded
  1 - Query failed (unknown root, source unavailable, type mismatch)
  2 - Command error (bad config, catalog unavailable)

Examples:
  fedq query sales joined
  fedq query sales orders --format csv`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)

			a, err := openCommandApp(rootOpts, cmd)
			if err != nil {
				return failWith(formatter, err)
			}
			defer a.Close()

			formatter.VerboseLog("Executing %s/%s", args[0], args[1])
			rs, err := a.Query(cmd.Context(), args[0], args[1])
			if err != nil {
				return failWith(formatter, err)
			}
			return formatter.Table(rs.Columns, rs.Rows)
		},
	}
}
