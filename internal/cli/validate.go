package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/fedq/internal/graph"
)

// ValidationResult summarizes a definition that built cleanly.
type ValidationResult struct {
	Valid      bool     `json:"valid"`
	Definition string   `json:"definition"`
	Graphs     []string `json:"graphs"`
	Nodes      int      `json:"nodes"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <file|cue-dir>",
		Short: "Validate a definition against the configured sources",
		Long: `Validate a query graph definition without storing it.

The definition is a persisted JSON document, a single CUE file, or a
directory of CUE files. Every source reference is resolved against the
configured sources, so schema, alias and type errors are reported
exactly as save would report them.

Exit codes:
  0 - Definition is valid
  1 - Definition is invalid
  2 - Command error (missing file, bad config, source unavailable)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	env, err := loadEnvironment(opts, cmd.ErrOrStderr())
	if err != nil {
		return failWith(formatter, err)
	}
	registry, release, err := env.openSources(cmd.Context())
	if err != nil {
		return failWith(formatter, err)
	}
	defer release()

	formatter.VerboseLog("Validating %s against %d source(s)", path, len(registry.Names()))
	def, err := LoadDefinition(path, registry)
	if err != nil {
		return failWith(formatter, err)
	}

	result := summarize(def)
	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ Definition %s is valid: %d graph(s), %d node(s)\n",
		result.Definition, len(result.Graphs), result.Nodes)
	return nil
}

func summarize(def *graph.Definition) ValidationResult {
	result := ValidationResult{Valid: true, Definition: def.Name, Graphs: def.GraphNames()}
	for _, name := range result.Graphs {
		result.Nodes += len(def.Graphs[name].Nodes())
	}
	return result
}
