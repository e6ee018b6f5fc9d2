package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/fedq/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool   // rewrite golden snapshots
	Filter string // glob on the scenario file name, without extension
}

// ScenarioOutcome is the verdict for one scenario file.
type ScenarioOutcome struct {
	File     string   `json:"file"`
	Name     string   `json:"name,omitempty"`
	Queries  int      `json:"queries"`
	Pass     bool     `json:"pass"`
	Problems []string `json:"problems,omitempty"`
}

// TestReport lists outcomes in file order.
type TestReport struct {
	Scenarios []ScenarioOutcome `json:"scenarios"`
	Failed    int               `json:"failed"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run conformance scenarios",
		Long: `Run every *.yaml scenario under a directory.

A scenario passes when its query expectations hold and, if
golden/<file>.golden exists next to it, the result snapshot matches.
--update rewrites the snapshots; expectations are still enforced.

Examples:
  fedq test ./scenarios
  fedq test ./scenarios --filter "orders_*"
  fedq test ./scenarios --update --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(cmd, opts, args[0])
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "rewrite golden snapshots")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "only run scenario files matching this glob")

	return cmd
}

func runTests(cmd *cobra.Command, opts *TestOptions, dir string) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	files, err := scenarioFiles(dir, opts.Filter)
	if err != nil {
		code := ErrCodeScanError
		if errors.Is(err, fs.ErrNotExist) {
			code = ErrCodeNotFound
		}
		_ = formatter.Error(code, err.Error(), nil)
		return WrapExitError(ExitCommandError, code, err)
	}

	report := TestReport{Scenarios: make([]ScenarioOutcome, 0, len(files))}
	for _, path := range files {
		outcome := checkScenario(cmd.Context(), path, opts.Update)
		if !outcome.Pass {
			report.Failed++
		}
		report.Scenarios = append(report.Scenarios, outcome)
	}

	if formatter.Format == "json" {
		if report.Failed > 0 {
			_ = formatter.Error(ErrCodeScenarioFailed, failedMessage(report), report)
		} else if err := formatter.Success(report); err != nil {
			return err
		}
	} else {
		writeReport(formatter, report)
	}

	if report.Failed > 0 {
		return NewExitError(ExitFailure, failedMessage(report))
	}
	return nil
}

// scenarioFiles walks dir for scenario files, skipping golden directories.
func scenarioFiles(dir, filter string) ([]string, error) {
	if filter != "" {
		if _, err := filepath.Match(filter, ""); err != nil {
			return nil, fmt.Errorf("invalid filter %q: %w", filter, err)
		}
	}

	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		switch {
		case err != nil:
			return err
		case d.IsDir():
			if d.Name() == "golden" {
				return filepath.SkipDir
			}
			return nil
		}
		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			if ok, _ := filepath.Match(filter, strings.TrimSuffix(d.Name(), ext)); !ok {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	return files, err
}

// checkScenario runs one scenario file and compares or rewrites its
// golden snapshot.
func checkScenario(ctx context.Context, path string, update bool) ScenarioOutcome {
	outcome := ScenarioOutcome{File: filepath.Base(path)}
	fail := func(format string, args ...any) ScenarioOutcome {
		outcome.Problems = append(outcome.Problems, fmt.Sprintf(format, args...))
		return outcome
	}

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		return fail("load: %v", err)
	}
	outcome.Name = scenario.Name
	outcome.Queries = len(scenario.Queries)

	result, err := harness.Run(ctx, scenario)
	if err != nil {
		return fail("setup: %v", err)
	}
	outcome.Problems = append(outcome.Problems, result.Errors...)

	snapshot, err := harness.Snapshot(scenario.Name, result)
	if err != nil {
		return fail("snapshot: %v", err)
	}

	golden := goldenPath(path)
	if update {
		if err := os.MkdirAll(filepath.Dir(golden), 0755); err != nil {
			return fail("golden: %v", err)
		}
		if err := os.WriteFile(golden, snapshot, 0644); err != nil {
			return fail("golden: %v", err)
		}
	} else {
		want, err := os.ReadFile(golden)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return fail("golden: %v", err)
		case !bytes.Equal(want, snapshot):
			outcome.Problems = append(outcome.Problems, "snapshot differs from "+golden+" (rerun with --update)")
		}
	}

	outcome.Pass = len(outcome.Problems) == 0
	return outcome
}

// goldenPath maps dir/orders.yaml to dir/golden/orders.golden.
func goldenPath(scenarioFile string) string {
	base := filepath.Base(scenarioFile)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(filepath.Dir(scenarioFile), "golden", name+".golden")
}

func writeReport(f *OutputFormatter, report TestReport) {
	if len(report.Scenarios) == 0 {
		fmt.Fprintln(f.Writer, "No scenarios found.")
		return
	}
	for _, o := range report.Scenarios {
		name := o.Name
		if name == "" {
			name = o.File
		}
		if o.Pass {
			fmt.Fprintf(f.Writer, "PASS %s (%d quer%s)\n", name, o.Queries, pluralY(o.Queries))
			continue
		}
		fmt.Fprintf(f.Writer, "FAIL %s\n", name)
		for _, p := range o.Problems {
			fmt.Fprintf(f.Writer, "     %s\n", p)
		}
	}
	passed := len(report.Scenarios) - report.Failed
	fmt.Fprintf(f.Writer, "\n%d of %d scenario%s passed\n", passed, len(report.Scenarios), plural(len(report.Scenarios)))
}

func failedMessage(report TestReport) string {
	return fmt.Sprintf("%d of %d scenario%s failed", report.Failed, len(report.Scenarios), plural(len(report.Scenarios)))
}

func pluralY(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}
