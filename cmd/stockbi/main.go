// cmd/stockbi/main.go
package main

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/depomat/stockbi/internal/bi"
	"github.com/depomat/stockbi/internal/config"
	"github.com/depomat/stockbi/internal/importer"
	"github.com/depomat/stockbi/internal/repository"
	"github.com/depomat/stockbi/internal/repository/postgres"
	"github.com/depomat/stockbi/internal/storage"
	"github.com/depomat/stockbi/pkg/logger"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

func newDayFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:  "day",
		Usage: "Target day as YYYY-MM-DD (default: yesterday)",
	}
}

// app bundles the wired engines behind the commands.
type app struct {
	cfg      *config.Config
	loc      *time.Location
	db       *postgres.DB
	importer *importer.Importer
	pipeline *bi.Pipeline
	kpi      *bi.KpiAggregator
	velocity *bi.VelocityCalculator
	alerts   *bi.AlertClassifier
}

func buildApp() (*app, error) {
	cfg := config.Load()
	logger.SetLevel(cfg.App.LogLevel)

	loc, err := time.LoadLocation(cfg.App.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", cfg.App.Timezone, err)
	}

	db, err := postgres.NewDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	metrics := repository.NewMetricsRepository(db.DB)
	kpis := repository.NewKpiRepository(db.DB)
	velocities := repository.NewVelocityRepository(db.DB)
	alerts := repository.NewAlertRepository(db.DB)
	products := repository.NewProductRepository(db.DB)
	runs := repository.NewRunRepository(db.DB)

	recorder := bi.NewSnapshotRecorder(metrics, loc)
	kpiAgg := bi.NewKpiAggregator(metrics, kpis)
	velocityCalc := bi.NewVelocityCalculator(metrics, velocities)
	alertCls := bi.NewAlertClassifier(alerts, velocities, cfg.Alerts)

	return &app{
		cfg:      cfg,
		loc:      loc,
		db:       db,
		importer: importer.NewImporter(recorder, products),
		pipeline: bi.NewPipeline(kpiAgg, velocityCalc, alertCls, runs, loc),
		kpi:      kpiAgg,
		velocity: velocityCalc,
		alerts:   alertCls,
	}, nil
}

// dayAction wraps the single-day compute commands: resolve the optional
// --day flag and run one stage.
func dayAction(run func(a *app, c *cli.Context, day time.Time) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		defer a.db.Close()

		day, err := bi.ResolveDay(c.String("day"), a.loc)
		if err != nil {
			return err
		}
		return run(a, c, day)
	}
}

func main() {
	cliApp := &cli.App{
		Name:  "stockbi",
		Usage: "Inventory BI pipeline: imports stock exports and maintains the daily KPI, velocity and alert tables",
		Commands: []*cli.Command{
			{
				Name:   "migrate",
				Usage:  "Apply the BI schema to the configured database",
				Action: runMigrate,
			},
			{
				Name:  "import",
				Usage: "Import a WinMentor stock export from a local file or the object store",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "file",
						Usage:   "Path to a local export CSV",
						EnvVars: []string{"STOCK_EXPORT_FILE"},
					},
					&cli.StringFlag{
						Name:    "object",
						Usage:   "Object key in the configured bucket",
						EnvVars: []string{"STOCK_EXPORT_OBJECT"},
					},
					&cli.StringFlag{
						Name:  "observed-at",
						Usage: "Snapshot timestamp as RFC3339 (default: now)",
					},
				},
				Action: runImport,
			},
			{
				Name:  "compute-kpi",
				Usage: "Roll a day's stock metrics into the daily KPI row",
				Flags: []cli.Flag{newDayFlag()},
				Action: dayAction(func(a *app, c *cli.Context, day time.Time) error {
					return a.kpi.ComputeKpi(c.Context, day)
				}),
			},
			{
				Name:  "compute-velocity",
				Usage: "Rebuild the rolling 7/30/90-day consumption rates",
				Flags: []cli.Flag{newDayFlag()},
				Action: dayAction(func(a *app, c *cli.Context, day time.Time) error {
					return a.velocity.ComputeVelocity(c.Context, day)
				}),
			},
			{
				Name:  "compute-alerts",
				Usage: "Classify a day's closing stock into risk-ranked alert candidates",
				Flags: []cli.Flag{newDayFlag()},
				Action: dayAction(func(a *app, c *cli.Context, day time.Time) error {
					return a.alerts.ComputeAlerts(c.Context, day)
				}),
			},
			{
				Name:  "compute-daily",
				Usage: "Run the full daily pipeline: KPI, velocity, alerts",
				Flags: []cli.Flag{newDayFlag()},
				Action: dayAction(func(a *app, c *cli.Context, day time.Time) error {
					return a.pipeline.RunDaily(c.Context, day)
				}),
			},
			{
				Name:  "backfill",
				Usage: "Replay the daily pipeline over a date range",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "from",
						Usage:    "First day as YYYY-MM-DD",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "to",
						Usage:    "Last day as YYYY-MM-DD (inclusive)",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "skip-velocity-restore",
						Usage: "Leave the velocity table as of the last backfilled day",
					},
				},
				Action: runBackfill,
			},
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func runMigrate(c *cli.Context) error {
	cfg := config.Load()
	logger.SetLevel(cfg.App.LogLevel)

	db, err := sql.Open("pgx", postgres.ConnString(&cfg.Database))
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if err := postgres.Migrate(c.Context, db); err != nil {
		return err
	}

	log.Info().Msg("schema migrated")
	return nil
}

func runImport(c *cli.Context) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.db.Close()

	observedAt := time.Now()
	if raw := c.String("observed-at"); raw != "" {
		observedAt, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			return fmt.Errorf("invalid observed-at %q (expected RFC3339): %w", raw, err)
		}
	}

	path := c.String("file")
	object := c.String("object")
	switch {
	case path == "" && object == "":
		return fmt.Errorf("either --file or --object is required")
	case path != "" && object != "":
		return fmt.Errorf("--file and --object are mutually exclusive")
	case object != "":
		store, err := storage.NewMinioClient(a.cfg.Storage)
		if err != nil {
			return err
		}
		path = filepath.Join(os.TempDir(), "stockbi", filepath.Base(object))
		if err := store.DownloadObject(c.Context, object, path); err != nil {
			return err
		}
		defer os.Remove(path)
	}

	result, err := a.importer.ImportFile(c.Context, path, observedAt)
	if err != nil {
		return err
	}

	log.Info().
		Int("rows_read", result.RowsRead).
		Int("products", result.Products).
		Msg("import completed")
	return nil
}

func runBackfill(c *cli.Context) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.db.Close()

	from, err := time.Parse("2006-01-02", c.String("from"))
	if err != nil {
		return fmt.Errorf("invalid from day: %w", err)
	}
	to, err := time.Parse("2006-01-02", c.String("to"))
	if err != nil {
		return fmt.Errorf("invalid to day: %w", err)
	}

	return a.pipeline.Backfill(c.Context, from, to, c.Bool("skip-velocity-restore"))
}
