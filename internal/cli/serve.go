package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/healthstore/internal/coordinator"
	"github.com/roach88/healthstore/internal/server"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Listen string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the store over HTTP",
		Long: `Open the store and serve it over HTTP until interrupted.

The caller identity of each request is read from the X-Caller header.
Requests acting as the owner must also send "Authorization: Bearer <token>"
with the owner_token setting (env HEALTHSTORE_OWNER_TOKEN). Without one the
owner identity is refused over HTTP.

Example:
  healthstore serve --listen 127.0.0.1:8787 --verbose`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", "", "listen address (overrides listen)")

	return cmd
}

func serve(opts *ServeOptions, cmd *cobra.Command) error {
	listen := opts.Listen
	if listen == "" {
		listen = opts.Settings.Listen
	}

	hs, err := opts.openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := hs.Close(); closeErr != nil {
			slog.Error("error closing store", "error", closeErr)
		}
	}()

	cancelWatch := hs.Subscribe(func(c coordinator.Change) {
		slog.Debug("change committed", "uri", c.URI, "tx", c.TxID)
	})
	defer cancelWatch()

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(cmd.OutOrStdout(), "Serving %s on http://%s\n", opts.Settings.Authority, listen)
	if opts.Settings.OwnerToken == "" {
		slog.Warn("no owner_token configured, owner requests will be refused", "owner", opts.Settings.Owner)
	}
	srv := server.New(hs,
		server.WithLogger(slog.Default()),
		server.WithOwnerToken(opts.Settings.OwnerToken),
	)
	if err := srv.ListenAndServe(ctx, listen); err != nil {
		return WrapExitError(ExitFailure, "server error", err)
	}
	slog.Info("server stopped")
	return nil
}

// NewDumpCommand creates the dump command. Activity statistics live in
// the serving process, so dump asks it over HTTP.
func NewDumpCommand(rootOpts *RootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print the activity statistics of a running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = rootOpts.Settings.Listen
			}
			client := &http.Client{Timeout: 10 * time.Second}
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, "http://"+addr+"/debug/dump", nil)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid server address", err)
			}
			resp, err := client.Do(req)
			if err != nil {
				return WrapExitError(ExitCommandError, "server unreachable", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return NewExitError(ExitFailure, "dump failed: "+resp.Status)
			}

			if rootOpts.Format == "json" {
				b, err := io.ReadAll(resp.Body)
				if err != nil {
					return WrapExitError(ExitFailure, "failed to read dump", err)
				}
				return rootOpts.formatter(cmd).Success(string(b))
			}
			if _, err := io.Copy(cmd.OutOrStdout(), resp.Body); err != nil && !errors.Is(err, io.EOF) {
				return WrapExitError(ExitFailure, "failed to read dump", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "server", "", "address of the running server (default: listen)")
	return cmd
}
