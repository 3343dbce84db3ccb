package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/healthstore/internal/coordinator"
	"github.com/roach88/healthstore/internal/record"
)

// SelectionOptions holds the selection flags shared by reads and writes.
type SelectionOptions struct {
	Where string
	Args  []string
}

func (s *SelectionOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&s.Where, "where", "", "selection, with ? placeholders")
	cmd.Flags().StringArrayVar(&s.Args, "arg", nil, "selection argument (repeatable)")
}

func (s *SelectionOptions) args() []any {
	if len(s.Args) == 0 {
		return nil
	}
	out := make([]any, len(s.Args))
	for i, a := range s.Args {
		out[i] = a
	}
	return out
}

// insertResult is the output of an insert.
type insertResult struct {
	URI string `json:"uri"`
}

func (r insertResult) String() string {
	if r.URI == "" {
		return "denied"
	}
	return r.URI
}

// countResult is the output of updates, deletes and bulk inserts.
type countResult struct {
	Count  int64 `json:"count"`
	Denied bool  `json:"denied,omitempty"`
}

func newCountResult(n int64) countResult {
	if n == coordinator.DeniedCount {
		return countResult{Denied: true}
	}
	return countResult{Count: n}
}

func (r countResult) String() string {
	if r.Denied {
		return "denied"
	}
	return fmt.Sprintf("%d row(s)", r.Count)
}

// address resolves a path relative to the configured authority. Full
// addresses are returned unchanged.
func (opts *RootOptions) address(path string) string {
	path = strings.Trim(path, "/")
	if strings.HasPrefix(path, opts.Settings.Authority+"/") {
		return path
	}
	return opts.Settings.Authority + "/" + path
}

// parseValues decodes a JSON object given on the command line.
func parseValues(s string) (record.Values, error) {
	var v record.Values
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid --values JSON", err)
	}
	if v == nil {
		return nil, NewExitError(ExitCommandError, "--values must be a JSON object")
	}
	return v, nil
}

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	SelectionOptions
	Projection []string
	Sort       string
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query <address>",
		Short: "Read records, access entries or the profile",
		Long: `Read the rows at an address.

Example:
  healthstore query body/weight --as org.example.tracker
  healthstore query blood/glucose --projection value,time --where "value > ?" --arg 7`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hs, err := opts.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer hs.Close()

			rows, err := hs.Query(opts.callerContext(cmd.Context()), coordinator.QueryRequest{
				URI:        opts.address(args[0]),
				Projection: opts.Projection,
				Where:      opts.Where,
				Args:       opts.args(),
				SortOrder:  opts.Sort,
			})
			if err != nil {
				return storeError("query", err)
			}
			return opts.formatter(cmd).Rows(rows)
		},
	}

	opts.SelectionOptions.register(cmd)
	cmd.Flags().StringSliceVar(&opts.Projection, "projection", nil, "columns to return")
	cmd.Flags().StringVar(&opts.Sort, "sort", "", "sort order")

	return cmd
}

// InsertOptions holds flags for the insert command.
type InsertOptions struct {
	*RootOptions
	Values string
	File   string
}

// NewInsertCommand creates the insert command.
func NewInsertCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InsertOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "insert <address>",
		Short: "Insert one row, or many in one transaction",
		Long: `Insert one row from --values, or every row of a YAML/JSON list in --file
in a single transaction.

Example:
  healthstore insert body/weight --values '{"_metric":1008,"value":71.5}'
  healthstore insert mindfulness/sleep --file nights.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (opts.Values == "") == (opts.File == "") {
				return NewExitError(ExitCommandError, "exactly one of --values or --file is required")
			}
			hs, err := opts.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer hs.Close()
			ctx := opts.callerContext(cmd.Context())
			out := opts.formatter(cmd)

			if opts.File != "" {
				rows, err := readValuesFile(opts.File)
				if err != nil {
					return err
				}
				n, err := hs.BulkInsert(ctx, opts.address(args[0]), rows)
				if err != nil {
					return storeError("bulk insert", err)
				}
				return out.Success(countResult{Count: n})
			}

			values, err := parseValues(opts.Values)
			if err != nil {
				return err
			}
			uri, err := hs.Insert(ctx, opts.address(args[0]), values)
			if err != nil {
				return storeError("insert", err)
			}
			return out.Success(insertResult{URI: uri})
		},
	}

	cmd.Flags().StringVar(&opts.Values, "values", "", "row as a JSON object")
	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "YAML or JSON list of rows")

	return cmd
}

// readValuesFile reads a list of rows. YAML is a superset of JSON, so one
// decoder serves both.
func readValuesFile(path string) ([]record.Values, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to read file", err)
	}
	var rows []record.Values
	if err := yaml.Unmarshal(b, &rows); err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to parse "+path, err)
	}
	return rows, nil
}

// UpdateOptions holds flags for the update command.
type UpdateOptions struct {
	*RootOptions
	SelectionOptions
	Values string
}

// NewUpdateCommand creates the update command.
func NewUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &UpdateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "update <address>",
		Short: "Update the rows at an address",
		Long: `Update the rows at an address.

Example:
  healthstore update body/weight/3 --values '{"value":70.9}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := parseValues(opts.Values)
			if err != nil {
				return err
			}
			hs, err := opts.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer hs.Close()

			n, err := hs.Update(opts.callerContext(cmd.Context()), opts.address(args[0]), values, opts.Where, opts.args())
			if err != nil {
				return storeError("update", err)
			}
			return opts.formatter(cmd).Success(newCountResult(n))
		},
	}

	opts.SelectionOptions.register(cmd)
	cmd.Flags().StringVar(&opts.Values, "values", "", "changed columns as a JSON object (required)")
	_ = cmd.MarkFlagRequired("values")

	return cmd
}

// DeleteOptions holds flags for the delete command.
type DeleteOptions struct {
	*RootOptions
	SelectionOptions
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DeleteOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "delete <address>",
		Short: "Delete the rows at an address",
		Long: `Delete the rows at an address.

Example:
  healthstore delete body/weight/3
  healthstore delete body/weight`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hs, err := opts.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer hs.Close()

			n, err := hs.Delete(opts.callerContext(cmd.Context()), opts.address(args[0]), opts.Where, opts.args())
			if err != nil {
				return storeError("delete", err)
			}
			return opts.formatter(cmd).Success(newCountResult(n))
		},
	}

	opts.SelectionOptions.register(cmd)

	return cmd
}
