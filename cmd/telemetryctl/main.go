package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/septivank/ev-telemetry-engine/internal/config"
	"github.com/septivank/ev-telemetry-engine/internal/correlate"
	"github.com/septivank/ev-telemetry-engine/internal/db"
	"github.com/septivank/ev-telemetry-engine/internal/efficiency"
	"github.com/septivank/ev-telemetry-engine/internal/logging"
	"github.com/septivank/ev-telemetry-engine/internal/repository"
	"github.com/septivank/ev-telemetry-engine/internal/service"
	"github.com/septivank/ev-telemetry-engine/internal/validator"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	databaseURL string
	verbose     bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "telemetryctl",
		Short: "Operate the EV telemetry engine from the command line",
		Long: `Inspect current device status, compute efficiency analytics and
bootstrap the schema directly against the readings database.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&databaseURL, "database-url", "", "Postgres URL (defaults to DATABASE_URL)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Emit structured logs to stderr")

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(performanceCmd())
	rootCmd.AddCommand(fleetCmd())
	rootCmd.AddCommand(ingestCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// deps are the services a command runs against
type deps struct {
	cfg       *config.Config
	logger    *zap.Logger
	pool      *db.Pool
	ingestion *service.IngestionService
	analytics *service.AnalyticsService
	processor *service.ProcessorService
}

// run loads configuration, connects to the database and invokes fn
func run(fn func(ctx context.Context, d *deps) error) error {
	config.LoadDotEnv()
	if databaseURL != "" {
		os.Setenv("DATABASE_URL", databaseURL)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := zap.NewNop()
	if verbose {
		if logger, err = logging.NewLogger(cfg.ServiceName, "debug"); err != nil {
			return err
		}
	}
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pool, err := db.Connect(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	repo := repository.NewRepository(pool, repository.WithMonotonicStatus(cfg.Ingest.MonotonicStatus))
	ingestion := service.NewIngestionService(repo, cfg, nil, logger)
	analytics := service.NewAnalyticsService(
		repo,
		correlate.NewPrefixCorrelator(cfg.Analytics.VehiclePrefix, cfg.Analytics.MeterPrefix),
		efficiency.NewClassifier(cfg.Analytics.HealthyThreshold, cfg.Analytics.WarningThreshold),
		cfg,
		nil,
		logger,
	)
	processor := service.NewProcessorService(
		ingestion,
		nil,
		validator.NewValidator(cfg.Validation.TimestampToleranceMinutes),
		cfg,
		logger,
	)

	return fn(ctx, &deps{
		cfg:       cfg,
		logger:    logger,
		pool:      pool,
		ingestion: ingestion,
		analytics: analytics,
		processor: processor,
	})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// migrateCmd creates the tables and indexes
func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the history and status tables if they do not exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, d *deps) error {
				if err := db.Migrate(ctx, d.pool); err != nil {
					return err
				}
				fmt.Println("schema is up to date")
				return nil
			})
		},
	}
}

// statusCmd prints the current status row of one device
func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "status (meter|vehicle) <id>",
		Short:     "Show the current status of a meter or vehicle",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{service.DeviceClassMeter, service.DeviceClassVehicle},
		RunE: func(cmd *cobra.Command, args []string) error {
			deviceClass, id := args[0], args[1]
			return run(func(ctx context.Context, d *deps) error {
				switch deviceClass {
				case service.DeviceClassMeter:
					status, err := d.ingestion.GetMeterStatus(ctx, id)
					if err != nil {
						return err
					}
					return printJSON(status)
				case service.DeviceClassVehicle:
					status, err := d.ingestion.GetVehicleStatus(ctx, id)
					if err != nil {
						return err
					}
					return printJSON(status)
				default:
					return fmt.Errorf("unknown device class %q, expected meter or vehicle", deviceClass)
				}
			})
		},
	}
}

// performanceCmd prints the efficiency summary of one vehicle
func performanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "performance <vehicleId>",
		Short: "Show the trailing-window efficiency of a vehicle and its correlated meter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, d *deps) error {
				summary, err := d.analytics.GetVehiclePerformance(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(summary)
			})
		},
	}
}

// fleetCmd prints the fleet-wide rollup
func fleetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fleet",
		Short: "Show fleet-wide efficiency and health counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, d *deps) error {
				summary, err := d.analytics.GetFleetSummary(ctx)
				if err != nil {
					return err
				}
				return printJSON(summary)
			})
		},
	}
}

// ingestCmd replays newline-delimited telemetry envelopes, as published to the ingest queue
func ingestCmd() *cobra.Command {
	var stopOnError bool

	cmd := &cobra.Command{
		Use:   "ingest [file...]",
		Short: "Ingest newline-delimited telemetry messages from files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, d *deps) error {
				var accepted, rejected int
				for _, path := range args {
					f, err := os.Open(path)
					if err != nil {
						return err
					}

					scanner := bufio.NewScanner(f)
					line := 0
					for scanner.Scan() {
						line++
						if len(scanner.Bytes()) == 0 {
							continue
						}
						if err := d.processor.ProcessMessage(ctx, scanner.Bytes()); err != nil {
							rejected++
							fmt.Fprintf(os.Stderr, "%s:%d: %v\n", path, line, err)
							if stopOnError {
								f.Close()
								return err
							}
							continue
						}
						accepted++
					}
					f.Close()
					if err := scanner.Err(); err != nil {
						return fmt.Errorf("failed to read %s: %w", path, err)
					}
				}

				fmt.Printf("ingested %d messages, rejected %d\n", accepted, rejected)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&stopOnError, "stop-on-error", false, "Abort on the first rejected message")
	return cmd
}
