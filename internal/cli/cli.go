// Package cli implements the simdash command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"simdash/internal/config"
	"simdash/internal/registry"
	"simdash/internal/server"
	"simdash/internal/storage"
)

// serverFunc runs a configured server until ctx ends.
type serverFunc func(ctx context.Context, srv *server.Server) error

func defaultServe(ctx context.Context, srv *server.Server) error {
	return srv.Start(ctx)
}

// Root carries the shared state of every command.
type Root struct {
	cfg     *config.Config
	log     *slog.Logger
	store   *storage.Store
	out     io.Writer
	serveFn serverFunc
}

// NewRoot constructs the CLI root. store may be nil when history is disabled.
func NewRoot(cfg *config.Config, logger *slog.Logger, store *storage.Store) *Root {
	return &Root{
		cfg:     cfg,
		log:     logger,
		store:   store,
		out:     os.Stdout,
		serveFn: defaultServe,
	}
}

var errNoStore = errors.New("history database is disabled (paths.database_path is empty)")

func (r *Root) scan(ctx context.Context) (*registry.Registry, error) {
	return registry.Scan(ctx, r.cfg, r.log)
}

func (r *Root) table() *tabwriter.Writer {
	return tabwriter.NewWriter(r.out, 0, 4, 2, ' ', 0)
}

func (r *Root) printf(format string, args ...any) {
	fmt.Fprintf(r.out, format, args...)
}
