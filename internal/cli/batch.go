package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/healthstore/internal/coordinator"
)

// batchFile is the document read by the batch command.
type batchFile struct {
	Operations []coordinator.Operation `yaml:"operations"`
}

// batchResult is the output of the batch command.
type batchResult struct {
	Results []coordinator.Result `json:"results"`
}

func (r batchResult) String() string {
	var b strings.Builder
	for i, res := range r.Results {
		if i > 0 {
			b.WriteByte('\n')
		}
		if res.URI != "" {
			fmt.Fprintf(&b, "%d: %s", i+1, res.URI)
		} else {
			fmt.Fprintf(&b, "%d: %s", i+1, newCountResult(res.Count))
		}
	}
	return b.String()
}

// NewBatchCommand creates the batch command.
func NewBatchCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch <file>",
		Short: "Apply a list of operations atomically",
		Long: `Apply the operations of a YAML or JSON file in one transaction. If any
operation fails, none is applied.

Example file:
  operations:
    - op: insert
      uri: body/weight
      values: {_metric: 1008, value: 71.5}
    - op: delete
      uri: body/weight/3`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := os.ReadFile(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read batch file", err)
			}
			var doc batchFile
			if err := yaml.Unmarshal(b, &doc); err != nil {
				return WrapExitError(ExitCommandError, "failed to parse batch file", err)
			}
			for i := range doc.Operations {
				doc.Operations[i].URI = rootOpts.address(doc.Operations[i].URI)
			}

			hs, err := rootOpts.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer hs.Close()

			results, err := hs.ApplyBatch(rootOpts.callerContext(cmd.Context()), doc.Operations)
			if err != nil {
				return storeError("batch", err)
			}
			return rootOpts.formatter(cmd).Success(batchResult{Results: results})
		},
	}
	return cmd
}
