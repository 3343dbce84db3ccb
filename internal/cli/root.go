package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/healthstore/internal/coordinator"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose   bool
	Format    string // "json" | "text"
	ConfigDir string
	DataDir   string
	As        string // caller identity, the owner when empty

	// Settings is resolved before any subcommand runs.
	Settings Settings
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the healthstore CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "healthstore",
		Short: "Encrypted, permission-gated store for personal health records",
		Long: `healthstore keeps health records, per-caller access policies and a
medical profile in an encrypted embedded database.

Records are addressed as <category>/<metric>[/<id>], access entries as
access[/<caller>[/<metric>]] and the profile as profile.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			v, err := loadConfig(opts.ConfigDir, cmd.Root().PersistentFlags())
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load config", err)
			}
			if opts.Settings, err = settingsFrom(v); err != nil {
				return WrapExitError(ExitCommandError, "failed to load config", err)
			}
			configureLogging(opts)
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigDir, "config", "", "directory holding config.yaml (default: $HOME/.healthstore, then .)")
	cmd.PersistentFlags().StringVar(&opts.DataDir, "data-dir", "", "data directory (overrides data_dir)")
	cmd.PersistentFlags().StringVar(&opts.As, "as", "", "caller identity (default: the owner)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewInsertCommand(opts))
	cmd.AddCommand(NewUpdateCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewBatchCommand(opts))
	cmd.AddCommand(NewAccessCommand(opts))
	cmd.AddCommand(NewProfileCommand(opts))
	cmd.AddCommand(NewDumpCommand(opts))
	cmd.AddCommand(NewCheckSQLCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// Execute runs the root command and returns the process exit code.
func Execute(ctx context.Context, args []string) int {
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		if format, _ := cmd.PersistentFlags().GetString("format"); format == "json" {
			out := &OutputFormatter{Format: format, Writer: cmd.OutOrStdout()}
			_ = out.Error(ErrorCode(err), err.Error(), nil)
		} else {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error [%s]: %v\n", ErrorCode(err), err)
		}
		return GetExitCode(err)
	}
	return ExitSuccess
}

func configureLogging(opts *RootOptions) {
	level := opts.Settings.LogLevel
	if opts.Verbose {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, handlerOpts)
	if opts.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(handler))
}

// formatter returns the output formatter for cmd.
func (opts *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// caller returns the identity requests are made as.
func (opts *RootOptions) caller() string {
	if opts.As != "" {
		return opts.As
	}
	return opts.Settings.Owner
}

// callerContext returns ctx carrying the caller identity.
func (opts *RootOptions) callerContext(ctx context.Context) context.Context {
	return coordinator.WithCaller(ctx, opts.caller())
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
