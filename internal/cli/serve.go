package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/mintfactory/internal/flow"
	"github.com/roach88/mintfactory/internal/server"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Listen string

	// IDGenerator overrides the request id source (for testing).
	// If nil, the server uses UUIDv7.
	IDGenerator flow.IDGenerator
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the factory over HTTP",
		Long: `Serve create_collection, mint_proxy and the interface description
over HTTP, backed by the local replica in the configured database.

The database is created if it does not exist. Ctrl-C or SIGTERM drains
in-flight requests and stops the server.

Example:
  mintfactory serve --db ./mintfactory.db --listen :8080
  mintfactory serve --config ./mintfactory.toml --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", "", "listen address (overrides config)")

	return cmd
}

func serve(opts *ServeOptions, cmd *cobra.Command) error {
	// Signal handling wraps the command's context so tests can cancel it.
	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	e, err := openEnv(ctx, opts.RootOptions, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := e.Close(); closeErr != nil {
			e.logger.Error("error closing database", "error", closeErr)
		}
	}()

	addr := e.cfg.Listen
	if opts.Listen != "" {
		addr = opts.Listen
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			e.logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	srvOpts := []server.Option{server.WithLogger(e.logger)}
	if opts.IDGenerator != nil {
		srvOpts = append(srvOpts, server.WithIDGenerator(opts.IDGenerator))
	}
	srv := server.New(e.orchestrator(), e.proxy(), srvOpts...)

	e.logger.Info("factory ready", "self", e.self.String(), "db", e.cfg.Database, "modules", len(e.catalog.Modules()))
	fmt.Fprintf(cmd.OutOrStdout(), "Serving on %s as %s\n", addr, e.self)
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	if err := srv.ListenAndServe(ctx, addr); err != nil {
		return WrapExitError(ExitFailure, "server error", err)
	}

	e.logger.Info("server stopped gracefully")
	return nil
}
