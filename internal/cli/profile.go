package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/healthstore/internal/record"
)

// profileResult prints a profile one field per line.
type profileResult record.Values

func (p profileResult) String() string {
	v := record.Values(p)
	var b strings.Builder
	for i, k := range v.Keys() {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s: %v", k, v[k])
	}
	return b.String()
}

// NewProfileCommand creates the profile command group.
func NewProfileCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Read, replace or reset the medical profile",
	}
	cmd.AddCommand(newProfileGetCommand(rootOpts))
	cmd.AddCommand(newProfileSetCommand(rootOpts))
	cmd.AddCommand(newProfileResetCommand(rootOpts))
	return cmd
}

func newProfileGetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get",
		Short: "Print the medical profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			hs, err := opts.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer hs.Close()

			p, err := hs.Profile(opts.callerContext(cmd.Context()))
			if err != nil {
				return storeError("read profile", err)
			}
			return opts.formatter(cmd).Success(profileResult(p))
		},
	}
}

func newProfileSetCommand(opts *RootOptions) *cobra.Command {
	var values string
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Replace the medical profile",
		Long: `Replace the medical profile. Fields left out take their defaults.

Example:
  healthstore profile set --values '{"blood_type":2,"height":1.82}'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseValues(values)
			if err != nil {
				return err
			}
			hs, err := opts.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer hs.Close()

			uri, err := hs.Insert(opts.callerContext(cmd.Context()), hs.Router().ProfileURI(), v)
			if err != nil {
				return storeError("set profile", err)
			}
			return opts.formatter(cmd).Success(insertResult{URI: uri})
		},
	}
	cmd.Flags().StringVar(&values, "values", "", "profile as a JSON object (required)")
	_ = cmd.MarkFlagRequired("values")
	return cmd
}

func newProfileResetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Reset the medical profile to its defaults",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			hs, err := opts.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer hs.Close()

			n, err := hs.Delete(opts.callerContext(cmd.Context()), hs.Router().ProfileURI(), "", nil)
			if err != nil {
				return storeError("reset profile", err)
			}
			return opts.formatter(cmd).Success(newCountResult(n))
		},
	}
}
