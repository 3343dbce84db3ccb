package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/healthstore/internal/access"
	"github.com/roach88/healthstore/internal/coordinator"
	"github.com/roach88/healthstore/internal/record"
)

// NewAccessCommand creates the access command group. Access entries can
// only be managed by the owner, so --as defaults to it.
func NewAccessCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "access",
		Short: "Manage per-caller access policies",
		Long: `Manage per-caller access policies.

A caller without an entry for a metric has full access to it. An entry
restricts the caller to none, read, write or all.`,
	}

	cmd.AddCommand(newAccessListCommand(rootOpts))
	cmd.AddCommand(newAccessGrantCommand(rootOpts))
	cmd.AddCommand(newAccessRevokeCommand(rootOpts))
	return cmd
}

func newAccessListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list [caller]",
		Short: "List access entries, optionally of one caller",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hs, err := opts.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer hs.Close()

			caller := ""
			if len(args) == 1 {
				caller = args[0]
			}
			rows, err := hs.Query(opts.callerContext(cmd.Context()), coordinator.QueryRequest{
				URI: hs.Router().AccessURI(caller, record.Unknown),
			})
			if err != nil {
				return storeError("list access", err)
			}
			return opts.formatter(cmd).Rows(rows)
		},
	}
}

func newAccessGrantCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "grant <caller> <metric> <none|read|write|all>",
		Short: "Set the permission of a caller on a metric",
		Long: `Set the permission of a caller on a metric, replacing any earlier entry.

Example:
  healthstore access grant org.example.tracker weight read`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			metric, err := record.ParseMetric(args[1])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid metric", err)
			}
			perm, err := access.ParsePermission(args[2])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid permission", err)
			}
			hs, err := opts.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer hs.Close()

			entry := access.Entry{Caller: args[0], Metric: metric, Permission: perm}
			uri, err := hs.Insert(opts.callerContext(cmd.Context()), hs.Router().AccessURI("", record.Unknown), entry.Values())
			if err != nil {
				return storeError("grant", err)
			}
			return opts.formatter(cmd).Success(insertResult{URI: uri})
		},
	}
}

func newAccessRevokeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <caller> [metric]",
		Short: "Remove the entries of a caller, restoring full access",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			metric := record.Unknown
			if len(args) == 2 {
				m, err := record.ParseMetric(args[1])
				if err != nil {
					return WrapExitError(ExitCommandError, "invalid metric", err)
				}
				metric = m
			}
			hs, err := opts.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer hs.Close()

			n, err := hs.Delete(opts.callerContext(cmd.Context()), hs.Router().AccessURI(args[0], metric), "", nil)
			if err != nil {
				return storeError("revoke", err)
			}
			return opts.formatter(cmd).Success(newCountResult(n))
		},
	}
}
