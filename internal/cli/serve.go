package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fangwd/restup/internal/config"
	"github.com/fangwd/restup/internal/httpapi"
)

// shutdownTimeout bounds how long in-flight requests may run after a signal.
const shutdownTimeout = 10 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Listen       string
	MaxBodyBytes int64

	// OnListen is called with the bound address once the listener is open
	// (for testing).
	OnListen func(addr net.Addr)
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the database over HTTP",
		Long: `Serve the tables of the configured database over HTTP.

GET /table reads rows, GET /table?...&update:col=value claims them and
POST /table writes a JSON object or array of rows.

Example:
  restup serve --dsn ./app.db
  restup serve --driver mysql --dsn 'user:pass@tcp(db:3306)/app' --listen :8080`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", "", "listen address (default from config, "+config.Default().Listen+")")
	cmd.Flags().Int64Var(&opts.MaxBodyBytes, "max-body", httpapi.DefaultMaxBodyBytes, "largest accepted POST body in bytes")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	// Use command's context if available (for testing), otherwise create one
	ctx, cancel := context.WithCancel(contextOf(cmd))
	defer cancel()

	rt, err := openEngine(ctx, cmd, opts.RootOptions, config.Overrides{Listen: opts.Listen})
	if err != nil {
		return err
	}
	defer rt.Close()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			rt.logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
			// Parent context cancelled (e.g., from test)
		}
	}()

	ln, err := net.Listen("tcp", rt.cfg.Listen)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}

	server := &http.Server{
		Handler: httpapi.NewHandler(rt.engine,
			httpapi.WithLogger(rt.logger),
			httpapi.WithMaxBodyBytes(opts.MaxBodyBytes),
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- server.Serve(ln)
	}()

	rt.logger.Info("server started", "addr", ln.Addr().String(), "driver", rt.cfg.Driver)
	fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s\n", ln.Addr())
	if opts.OnListen != nil {
		opts.OnListen(ln.Addr())
	}

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return WrapExitError(ExitFailure, "server error", err)
		}
	case <-ctx.Done():
		shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
		defer done()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return WrapExitError(ExitFailure, "shutdown failed", err)
		}
	}

	rt.logger.Info("server stopped gracefully")
	return nil
}
