package cli

import (
	"github.com/spf13/cobra"
)

// CheckSQLOptions holds flags for the check-sql command.
type CheckSQLOptions struct {
	*RootOptions
	Single bool
}

// NewCheckSQLCommand creates the check-sql command.
func NewCheckSQLCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckSQLOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "check-sql <fragment>",
		Short: "Check a selection or sort fragment against the token denylist",
		Long: `Check a caller-supplied fragment the way the store checks selections,
sort orders and (with --single) projection columns. The denylist is built
from the live schema.

Example:
  healthstore check-sql "value > ? AND time < ?"
  healthstore check-sql --single "value"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hs, err := opts.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer hs.Close()

			check := hs.Checker().EnsureNoInvalidTokens
			if opts.Single {
				check = hs.Checker().EnsureSingleTokenOnly
			}
			if err := check(args[0]); err != nil {
				return WrapExitError(ExitFailure, "fragment rejected", err)
			}
			return opts.formatter(cmd).Success("ok")
		},
	}

	cmd.Flags().BoolVar(&opts.Single, "single", false, "require exactly one identifier")

	return cmd
}
