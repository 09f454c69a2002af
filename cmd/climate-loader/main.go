package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/urfave/cli/v3"

	"climate-server/internal/config"
	"climate-server/internal/dataset"
	db "climate-server/internal/db"
	"climate-server/internal/logging"
	"climate-server/internal/modules/climate/repository"
	"climate-server/internal/modules/climate/types"
	"climate-server/internal/schema"
)

const appName = "climate-loader"

// Default version is "dev" if not set with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newCommand(os.Stdout).Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newCommand(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:    appName,
		Usage:   "Manage the climate database",
		Version: version,
		Writer:  out,
		Description: `Applies the climate schema and loads the station and measurement CSV exports.
The database is selected with the same environment variables as the server
(DB_DRIVER, DB_DSN, SQLITE_PATH); DB_READ_ONLY is ignored.`,
		Commands: []*cli.Command{
			schemaCmd(),
			loadCmd(),
			statusCmd(),
		},
	}
}

func schemaCmd() *cli.Command {
	return &cli.Command{
		Name:  "schema",
		Usage: "Apply pending schema versions",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withDB(ctx, func(conn *sqlx.DB) error {
				if err := schema.Run(ctx, conn); err != nil {
					return err
				}
				return printApplied(ctx, cmd.Root().Writer, conn)
			})
		},
	}
}

func loadCmd() *cli.Command {
	return &cli.Command{
		Name:  "load",
		Usage: "Apply the schema and load station and measurement CSV files",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "stations",
				Usage:    "CSV with columns station,name,latitude,longitude,elevation",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "measurements",
				Usage:    "CSV with columns station,date,prcp,tobs",
				Required: true,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			stations, err := os.Open(cmd.String("stations"))
			if err != nil {
				return fmt.Errorf("open stations: %w", err)
			}
			defer stations.Close()

			measurements, err := os.Open(cmd.String("measurements"))
			if err != nil {
				return fmt.Errorf("open measurements: %w", err)
			}
			defer measurements.Close()

			return withDB(ctx, func(conn *sqlx.DB) error {
				if err := schema.Run(ctx, conn); err != nil {
					return err
				}
				counts, err := dataset.Load(ctx, conn, stations, measurements)
				if err != nil {
					return fmt.Errorf("load dataset: %w", err)
				}
				_, err = fmt.Fprintf(cmd.Root().Writer, "loaded %d stations, %d measurements\n", counts.Stations, counts.Measurements)
				return err
			})
		},
	}
}

func statusCmd() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Print applied schema versions and row counts",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withDB(ctx, func(conn *sqlx.DB) error {
				out := cmd.Root().Writer
				if err := printApplied(ctx, out, conn); err != nil {
					return err
				}
				var counts types.TableCounts
				err := repository.NewRepository(conn).ReadOnly(ctx, func(q repository.Queries) error {
					var err error
					counts, err = q.TableCounts(ctx)
					return err
				})
				if err != nil {
					return fmt.Errorf("count rows: %w", err)
				}
				_, err = fmt.Fprintf(out, "stations: %d\nmeasurements: %d\n", counts.Stations, counts.Measurements)
				return err
			})
		},
	}
}

// withDB opens the configured database for writing, installs the logger
// and closes the handle when fn returns.
func withDB(ctx context.Context, fn func(conn *sqlx.DB) error) error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	cfg.ReadOnly = false
	slog.SetDefault(logging.New(cfg, version, appName))

	conn, err := db.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(conn); err != nil {
			slog.Error("db close", "error", err)
		}
	}()
	return fn(conn)
}

func printApplied(ctx context.Context, out io.Writer, conn *sqlx.DB) error {
	versions, err := schema.Applied(ctx, conn)
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		_, err = fmt.Fprintln(out, "schema: none applied")
		return err
	}
	for _, v := range versions {
		if _, err := fmt.Fprintf(out, "schema: %s\n", v); err != nil {
			return err
		}
	}
	return nil
}
