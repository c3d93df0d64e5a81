package cli

import (
	"context"
	"database/sql"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"cdr.dev/slog"
	"cdr.dev/slog/sloggers/sloghuman"

	"github.com/chronohq/chrono/chronod"
	"github.com/chronohq/chrono/chronod/database"
	"github.com/chronohq/chrono/chronod/database/dbmem"
	"github.com/chronohq/chrono/chronod/database/dbpg"
	"github.com/chronohq/chrono/chronod/database/pubsub"
)

func serverCmd() *cobra.Command {
	var (
		address     string
		postgresURL string
		inMemory    bool
		verbose     bool
	)
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Start the chronod API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger := slog.Make(sloghuman.Sink(os.Stderr))
			if verbose {
				logger = logger.Leveled(slog.LevelDebug)
			}

			var (
				store database.Store
				ps    pubsub.Pubsub
			)
			if inMemory {
				store = dbmem.New()
				ps = pubsub.NewInMemory()
			} else {
				if postgresURL == "" {
					return xerrors.New("either --postgres-url or --in-memory is required")
				}
				sqlDB, err := sql.Open("postgres", postgresURL)
				if err != nil {
					return xerrors.Errorf("open postgres: %w", err)
				}
				defer sqlDB.Close()
				if err := sqlDB.PingContext(ctx); err != nil {
					return xerrors.Errorf("ping postgres: %w", err)
				}
				if err := dbpg.Migrate(ctx, sqlDB); err != nil {
					return xerrors.Errorf("migrate: %w", err)
				}
				store = dbpg.New(sqlDB)
				ps, err = pubsub.New(ctx, sqlDB, postgresURL)
				if err != nil {
					return xerrors.Errorf("create pubsub: %w", err)
				}
				defer ps.Close()
			}

			registry := prometheus.NewRegistry()
			registry.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)

			api := chronod.New(&chronod.Options{
				Logger:             logger.Named("chronod"),
				Database:           store,
				Pubsub:             ps,
				SessionLookup:      envSessionLookup(logger),
				PrometheusRegistry: registry,
			})

			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
			mux.Handle("/", api.Handler())

			listener, err := net.Listen("tcp", address)
			if err != nil {
				return xerrors.Errorf("listen %q: %w", address, err)
			}
			server := &http.Server{
				Handler:           mux,
				ReadHeaderTimeout: 10 * time.Second,
			}

			logger.Info(ctx, "chronod listening", slog.F("address", listener.Addr().String()))
			eg, egCtx := errgroup.WithContext(ctx)
			eg.Go(func() error {
				err := server.Serve(listener)
				if xerrors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			})
			eg.Go(func() error {
				<-egCtx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			})
			return eg.Wait()
		},
	}
	cmd.Flags().StringVar(&address, "address", "127.0.0.1:3000", "Address to bind the API server to.")
	cmd.Flags().StringVar(&postgresURL, "postgres-url", os.Getenv("CHRONO_POSTGRES_URL"), "Postgres connection URL.")
	cmd.Flags().BoolVar(&inMemory, "in-memory", false, "Run with in-memory storage and pubsub. State is lost on exit.")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging.")
	return cmd
}
