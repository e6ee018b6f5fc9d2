package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/fedq/internal/querystore"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompilationResult is the JSON payload of a successful compile.
type CompilationResult struct {
	ValidationResult
	Output   string          `json:"output,omitempty"`
	Document json.RawMessage `json:"document,omitempty"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <cue-dir|file.cue>",
		Short: "Compile a CUE definition to its persisted JSON document",
		Long: `Compile a CUE-authored definition to the canonical JSON document that
save stores and validate accepts.

The definition is validated against the configured sources first. The
document is written to --output, or to stdout when no output is given.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	if info, err := os.Stat(path); err == nil && !info.IsDir() && filepath.Ext(path) != ".cue" {
		return failWith(formatter, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("not a CUE file or directory: %s", path)})
	}

	env, err := loadEnvironment(opts.RootOptions, cmd.ErrOrStderr())
	if err != nil {
		return failWith(formatter, err)
	}
	registry, release, err := env.openSources(cmd.Context())
	if err != nil {
		return failWith(formatter, err)
	}
	defer release()

	def, err := LoadDefinition(path, registry)
	if err != nil {
		return failWith(formatter, err)
	}
	formatter.VerboseLog("Compiled definition %s (%d graph(s))", def.Name, len(def.Graphs))

	doc, err := querystore.Save(def)
	if err != nil {
		return failWith(formatter, err)
	}

	result := CompilationResult{ValidationResult: summarize(def)}
	if opts.Output != "" {
		if err := os.WriteFile(opts.Output, doc, 0644); err != nil {
			return failWith(formatter, &LoadError{Code: ErrCodeWriteFailed, Message: fmt.Sprintf("writing output file: %v", err)})
		}
		result.Output = opts.Output
	} else {
		result.Document = doc
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	if opts.Output == "" {
		_, err := formatter.Writer.Write(doc)
		return err
	}
	fmt.Fprintf(formatter.Writer, "✓ Compiled definition %s: %d graph(s), %d node(s)\n",
		result.Definition, len(result.Graphs), result.Nodes)
	fmt.Fprintf(formatter.Writer, "Wrote document to %s\n", opts.Output)
	return nil
}
