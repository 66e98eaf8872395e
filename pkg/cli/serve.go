package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/getmockd/mockedprovider/pkg/client"
	"github.com/getmockd/mockedprovider/pkg/graphql"
	"github.com/getmockd/mockedprovider/pkg/mockedprovider"
)

// shutdownTimeout is the maximum time to wait for graceful shutdown.
const shutdownTimeout = 30 * time.Second

type serveFlags struct {
	sourceFlags
	host string
	port int
	path string
}

func newServeCmd(g *globalFlags) *cobra.Command {
	f := &serveFlags{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a mocked schema over HTTP",
		Long: `Serve a mocked GraphQL endpoint. Queries are answered from a shared cache
when possible and otherwise from generated or configured mocks.`,
		Example: `  # Serve a schema with generated values only
  gqlmock serve --schema schema.graphql

  # Serve with a mock configuration on a custom port
  gqlmock serve --config mocks.yaml --port 4001

  # Simulate a slow, rate limited backend
  gqlmock serve --schema schema.graphql --delay 300ms --rate 5`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := g.logger(cmd.ErrOrStderr())
			p, err := f.buildProvider(cmd, logger)
			if err != nil {
				return err
			}
			return f.run(cmd.Context(), p, logger)
		},
	}

	f.register(cmd)
	cmd.Flags().StringVar(&f.host, "host", "localhost", "Host to listen on")
	cmd.Flags().IntVarP(&f.port, "port", "p", 4000, "HTTP server port")
	cmd.Flags().StringVar(&f.path, "path", graphql.DefaultPath, "GraphQL endpoint path")
	return cmd
}

func (f *serveFlags) run(ctx context.Context, p *mockedprovider.MockedProvider, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := net.JoinHostPort(f.host, strconv.Itoa(f.port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           newServeMux(p.Client(mockedprovider.Props{}), f.path, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	logger.Info("serving mocked GraphQL endpoint", "addr", "http://"+addr+f.path)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newServeMux mounts the client behind the GraphQL HTTP handler.
func newServeMux(c *client.Client, path string, logger *slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle(path, graphql.NewHandlerFunc(func(r *http.Request, req *graphql.Request) *graphql.Response {
		return c.Do(r.Context(), req).Response()
	}, logger))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}
