package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/healthstore/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update    bool
	Filter    string // glob matched against the scenario file name without extension
	GoldenDir string
}

// ScenarioReport is the outcome of one scenario file.
type ScenarioReport struct {
	Name   string   `json:"name"`
	File   string   `json:"file"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// SuiteReport is the outcome of a test run.
type SuiteReport struct {
	Scenarios []ScenarioReport `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
}

func (r *SuiteReport) add(s ScenarioReport) {
	r.Scenarios = append(r.Scenarios, s)
	if s.Pass {
		r.Passed++
	} else {
		r.Failed++
	}
}

func (r *SuiteReport) String() string {
	var b strings.Builder
	for _, s := range r.Scenarios {
		mark := "✓"
		if !s.Pass {
			mark = "✗"
		}
		fmt.Fprintf(&b, "%s %s\n", mark, s.Name)
		for _, e := range s.Errors {
			fmt.Fprintf(&b, "    %s\n", strings.ReplaceAll(e, "\n", "\n    "))
		}
	}
	fmt.Fprintf(&b, "\n%d passed, %d failed, %d total", r.Passed, r.Failed, len(r.Scenarios))
	return b.String()
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run conformance scenarios against throwaway stores",
		Long: `Run every YAML scenario under a directory, each against a fresh store
in a temporary data directory.

A scenario passes when all of its step expectations hold and, if a golden
file named after the scenario exists, its trace matches that file byte for
byte. Golden files are read from the "golden" directory next to the
scenarios directory unless --golden-dir is given; --update rewrites them.

Exit codes:
  0 - every scenario passed
  1 - at least one scenario failed
  2 - the scenarios directory could not be read

Examples:
  healthstore test internal/harness/testdata/scenarios
  healthstore test ./scenarios --filter "read_*"
  healthstore test ./scenarios --update`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSuite(cmd, opts, args[0])
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "rewrite golden files from the current traces")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "only run scenarios whose file name matches this glob")
	cmd.Flags().StringVar(&opts.GoldenDir, "golden-dir", "", "golden file directory (default: <scenarios-dir>/../golden)")

	return cmd
}

func runSuite(cmd *cobra.Command, opts *TestOptions, dir string) error {
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return NewExitError(ExitCommandError, "scenarios directory not found: "+dir)
	}
	goldenDir := opts.GoldenDir
	if goldenDir == "" {
		goldenDir = filepath.Join(filepath.Dir(filepath.Clean(dir)), "golden")
	}

	files, err := scenarioFiles(dir, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list scenarios", err)
	}
	out := opts.formatter(cmd)
	if len(files) == 0 {
		if opts.Format == "json" {
			return out.Success(&SuiteReport{Scenarios: []ScenarioReport{}})
		}
		return out.Success("No scenarios found.")
	}

	report := &SuiteReport{Scenarios: make([]ScenarioReport, 0, len(files))}
	for _, file := range files {
		r := runScenarioFile(cmd, file, goldenDir, opts.Update)
		out.VerboseLog("%s: pass=%t", r.Name, r.Pass)
		report.add(r)
	}

	if report.Failed == 0 {
		return out.Success(report)
	}
	msg := fmt.Sprintf("%d scenario(s) failed", report.Failed)
	if opts.Format == "json" {
		if err := out.Error("TEST_FAILED", msg, report); err != nil {
			return err
		}
	} else if err := out.Success(report); err != nil {
		return err
	}
	return NewExitError(ExitFailure, msg)
}

// scenarioFiles lists the .yaml and .yml files under dir in lexical order.
func scenarioFiles(dir, filter string) ([]string, error) {
	if filter != "" {
		if _, err := filepath.Match(filter, ""); err != nil {
			return nil, fmt.Errorf("invalid filter pattern %q: %w", filter, err)
		}
	}
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
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

func runScenarioFile(cmd *cobra.Command, file, goldenDir string, update bool) ScenarioReport {
	report := ScenarioReport{Name: filepath.Base(file), File: file}
	fail := func(format string, args ...any) ScenarioReport {
		report.Errors = append(report.Errors, fmt.Sprintf(format, args...))
		report.Pass = false
		return report
	}

	scenario, err := harness.LoadScenario(file)
	if err != nil {
		return fail("failed to load scenario: %v", err)
	}
	report.Name = scenario.Name

	result, err := harness.Run(cmd.Context(), scenario)
	if err != nil {
		return fail("failed to run scenario: %v", err)
	}
	report.Pass = result.Pass
	report.Errors = append(report.Errors, result.Errors...)

	trace, err := harness.Snapshot(scenario.Name, result)
	if err != nil {
		return fail("failed to snapshot trace: %v", err)
	}
	goldenPath := filepath.Join(goldenDir, scenario.Name+".golden")

	if update {
		if err := os.MkdirAll(goldenDir, 0o755); err != nil {
			return fail("failed to create golden directory: %v", err)
		}
		if err := os.WriteFile(goldenPath, trace, 0o644); err != nil {
			return fail("failed to write golden file: %v", err)
		}
		return report
	}

	want, err := os.ReadFile(goldenPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// expectations only
	case err != nil:
		return fail("failed to read golden file: %v", err)
	case !bytes.Equal(want, trace):
		return fail("trace does not match golden file %s (rerun with --update to accept)", goldenPath)
	}
	return report
}
