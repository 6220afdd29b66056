// Command vnmeta looks up visual novel metadata on VNDB and keeps scraped
// records in a local SQLite database.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ryanm101/vnmeta/internal/config"
	"github.com/ryanm101/vnmeta/internal/logging"
	"github.com/ryanm101/vnmeta/internal/media"
	"github.com/ryanm101/vnmeta/internal/store"
	"github.com/ryanm101/vnmeta/internal/tracing"
	"github.com/ryanm101/vnmeta/internal/vndb"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/baggage"
)

const version = "1.0.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// app carries state shared by every command.
type app struct {
	configPath string
	out        *output
	cfg        *config.Config
	shutdown   func(context.Context) error
}

func newRootCmd() *cobra.Command {
	a := &app{out: &output{}}

	root := &cobra.Command{
		Use:          "vnmeta",
		Short:        "Visual novel metadata from VNDB",
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return a.teardown(cmd.Context())
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (default: .vnmeta.yaml or ~/.config/vnmeta/config.yaml)")
	flags.BoolVar(&a.out.JSON, "json", false, "output in JSON format")
	flags.BoolVarP(&a.out.Quiet, "quiet", "q", false, "suppress non-error output")

	root.AddCommand(
		newSearchCmd(a),
		newGetCmd(a),
		newScrapeCmd(a),
		newRecordsCmd(a),
		newServeCmd(a),
		newConfigCmd(a),
	)

	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	a.out.w = cmd.OutOrStdout()
	a.out.errW = cmd.ErrOrStderr()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var err error
	if a.configPath != "" {
		if a.cfg, err = config.LoadFile(a.configPath); err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
	} else if a.cfg, err = config.Load(); err != nil {
		a.out.Error("Warning: failed to load config: %v\n", err)
		a.cfg = config.DefaultConfig()
	}

	logging.SetupWriter(a.cfg.Logging, cmd.ErrOrStderr())

	if m, err := baggage.NewMember("app.version", version); err == nil {
		if b, err := baggage.New(m); err == nil {
			ctx = baggage.ContextWithBaggage(ctx, b)
		}
	}

	a.shutdown, err = tracing.Setup(ctx, tracing.DefaultConfig())
	if err != nil {
		logging.Error("failed to setup tracing", "error", err)
		a.shutdown = func(context.Context) error { return nil }
	}

	cmd.SetContext(ctx)
	return nil
}

func (a *app) teardown(ctx context.Context) error {
	if a.shutdown == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := a.shutdown(ctx); err != nil {
		logging.Error("failed to shutdown tracing", "error", err)
	}
	return nil
}

// newClient builds a VNDB client. Covers are stored under the media dir
// unless withImages is false.
func (a *app) newClient(withImages bool) *vndb.Client {
	opts := []vndb.Option{vndb.WithLogger(logging.With("vndb"))}
	if withImages {
		images := media.NewDownloader(a.cfg.GetMediaDir(), vndb.Slug, a.cfg.Images, logging.With("media"))
		opts = append(opts, vndb.WithImageFetcher(images))
	}
	return vndb.NewClient(a.cfg.VNDB, opts...)
}

func (a *app) openStore(ctx context.Context) (*store.Store, error) {
	st, err := store.Open(ctx, a.cfg.GetDBPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return st, nil
}
