package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/fedq/internal/app"
)

// SaveResult is the JSON payload of a successful save.
type SaveResult struct {
	Definition  string   `json:"definition"`
	Fingerprint string   `json:"fingerprint"`
	Graphs      []string `json:"graphs"`
}

// NewSaveCommand creates the save command.
func NewSaveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "save <file|cue-dir>",
		Short: "Validate a definition and store it in the catalog",
		Long: `Validate a definition against the configured sources and store it in the
catalog, replacing any stored definition with the same name.

Prints the fingerprint of the stored document.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)

			a, err := openCommandApp(rootOpts, cmd)
			if err != nil {
				return failWith(formatter, err)
			}
			defer a.Close()

			def, err := LoadDefinition(args[0], a.Sources)
			if err != nil {
				return failWith(formatter, err)
			}
			fingerprint, err := a.Catalog.Put(cmd.Context(), def)
			if err != nil {
				return failWith(formatter, err)
			}

			result := SaveResult{Definition: def.Name, Fingerprint: fingerprint, Graphs: def.GraphNames()}
			if formatter.Format == "json" {
				return formatter.Success(result)
			}
			fmt.Fprintf(formatter.Writer, "✓ Saved definition %s (%s)\n", result.Definition, result.Fingerprint)
			return nil
		},
	}
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List stored definitions",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)

			a, err := openCommandApp(rootOpts, cmd)
			if err != nil {
				return failWith(formatter, err)
			}
			defer a.Close()

			entries, err := a.Catalog.List(cmd.Context())
			if err != nil {
				return failWith(formatter, &LoadError{Code: ErrCodeCatalog, Message: err.Error()})
			}
			return outputEntries(formatter, entries)
		},
	}
}

func outputEntries(formatter *OutputFormatter, entries []app.Entry) error {
	if formatter.Format == "json" {
		if entries == nil {
			entries = []app.Entry{}
		}
		return formatter.Success(entries)
	}
	if len(entries) == 0 {
		fmt.Fprintln(formatter.Writer, "No definitions stored.")
		return nil
	}

	tw := tabwriter.NewWriter(formatter.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tREVISION\tFINGERPRINT\tGRAPHS")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", e.Name, e.Revision, e.Fingerprint, strings.Join(e.Graphs, ","))
	}
	return tw.Flush()
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "delete <definition>",
		Short:         "Remove a definition from the catalog",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)

			a, err := openCommandApp(rootOpts, cmd)
			if err != nil {
				return failWith(formatter, err)
			}
			defer a.Close()

			if err := a.Catalog.Delete(cmd.Context(), args[0]); err != nil {
				return failWith(formatter, err)
			}
			if formatter.Format == "json" {
				return formatter.Success(map[string]string{"deleted": args[0]})
			}
			fmt.Fprintf(formatter.Writer, "✓ Deleted definition %s\n", args[0])
			return nil
		},
	}
}

// openCommandApp loads the environment and opens the full app.
func openCommandApp(opts *RootOptions, cmd *cobra.Command) (*app.App, error) {
	env, err := loadEnvironment(opts, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	return env.openApp(cmd.Context())
}
