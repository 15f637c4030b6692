package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/nerrad567/dealer-core/internal/changefeed"
	"github.com/nerrad567/dealer-core/internal/housekeeping"
	"github.com/nerrad567/dealer-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/dealer-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/dealer-core/internal/telemetry"
	"github.com/nerrad567/dealer-core/migrations"
)

// errNotConfirmed is returned by clear without --yes.
var errNotConfirmed = errors.New("refusing to clear without --yes")

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Bring the database schema up to date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			if err := a.migrate(ctx); err != nil {
				return err
			}
			v, err := a.db.SchemaVersion(ctx)
			if err != nil {
				return err
			}
			a.log.Info("database migrations complete", "version", v)
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", v)
			return nil
		},
	}
}

func newStatusCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List migrations and whether each is applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.close()

			status, err := a.db.MigrationStatus(cmd.Context(), migrations.All())
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "VERSION\tNAME\tAPPLIED")
			for _, m := range status {
				applied := "pending"
				if m.Applied {
					applied = m.AppliedAt.Format(time.RFC3339)
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\n", m.Version, m.Name, applied)
			}
			return tw.Flush()
		},
	}
}

func newStatsCommand(opts *rootOptions) *cobra.Command {
	var tenant string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print deal statistics and table sizes for a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			s, err := a.openStore(ctx, nil)
			if err != nil {
				return err
			}

			deals, err := s.DealStats(ctx, tenant)
			if err != nil {
				return err
			}
			tables, err := s.TableCounts(ctx)
			if err != nil {
				return err
			}

			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"tenant": tenant,
				"deals":  deals,
				"tables": tables,
			})
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "", "user id whose deals to summarise (required)")
	_ = cmd.MarkFlagRequired("tenant") //nolint:errcheck // flag is defined above
	return cmd
}

func newClearCommand(opts *rootOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every record except settings (development only)",
		Long: `Delete every client, vehicle, deal, document and sync log entry.

Settings are kept. Requires development.allow_clear_all in the config
(or DEALERCORE_ALLOW_CLEAR_ALL=true) and the --yes flag.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errNotConfirmed
			}

			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			s, err := a.openStore(ctx, nil)
			if err != nil {
				return err
			}
			if err := s.ClearAll(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "store cleared")
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deleting all records")
	return cmd
}

// housekeepReport is printed by the housekeep command.
type housekeepReport struct {
	Cache     housekeeping.CleanupResult `json:"cache_cleanup"`
	DiskUsage map[string]diskUsage       `json:"disk_usage"`
}

type diskUsage struct {
	Bytes int64 `json:"bytes"`
	Files int64 `json:"files"`
}

func newHousekeepCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "housekeep",
		Short: "Evict old cache files and report disk usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(opts)
			if err != nil {
				return err
			}

			cleanup, err := housekeeping.CleanupCache(a.cfg.Storage.CacheDir, a.cfg.CacheMaxAge(), time.Now(), a.log)
			if err != nil {
				return err
			}

			report := housekeepReport{Cache: cleanup, DiskUsage: map[string]diskUsage{}}

			dbBytes, dbFiles, err := housekeeping.DatabaseSize(a.cfg.Database.Path)
			if err != nil {
				return err
			}
			report.DiskUsage[telemetry.AreaDatabase] = diskUsage{Bytes: dbBytes, Files: dbFiles}

			for area, dir := range map[string]string{
				telemetry.AreaCache:     a.cfg.Storage.CacheDir,
				telemetry.AreaDocuments: a.cfg.Storage.DocumentsDir,
			} {
				bytes, files, err := housekeeping.DirSize(dir)
				if err != nil {
					return err
				}
				report.DiskUsage[area] = diskUsage{Bytes: bytes, Files: files}
			}

			return writeJSON(cmd.OutOrStdout(), report)
		},
	}
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Publish the sync log and report telemetry until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func runServe(ctx context.Context, opts *rootOptions) error {
	a, err := openApp(opts)
	if err != nil {
		return err
	}
	defer a.close()

	a.log.Info("starting dealer-core", "version", version, "commit", commit, "build_date", date)

	reg := prometheus.NewRegistry()
	s, err := a.openStore(ctx, reg)
	if err != nil {
		return err
	}
	a.log.Info("store ready", "schema_version", s.SchemaVersion())

	// Connect everything before starting any loop so a failed connection
	// never leaves a loop running against a closed client.
	var loops []func(context.Context)

	if cfg := a.cfg.ChangeFeed; cfg.Enabled {
		topics := mqtt.Topics{Prefix: cfg.TopicPrefix}
		client, err := mqtt.Connect(cfg.MQTT, topics)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			a.log.Info("disconnecting from MQTT")
			if closeErr := client.Close(); closeErr != nil {
				a.log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		client.SetLogger(a.log)
		client.SetOnConnect(func() { a.log.Info("MQTT reconnected") })
		a.log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		relay := changefeed.NewRelay(s, client, changefeed.Options{
			Topics:    topics,
			QoS:       client.QoS(),
			BatchSize: cfg.BatchSize,
			Logger:    a.log,
		})
		interval := a.cfg.ChangeFeedInterval()
		loops = append(loops, func(ctx context.Context) { relay.Run(ctx, interval) })
	} else {
		a.log.Info("change feed disabled")
	}

	if cfg := a.cfg.Telemetry; cfg.Enabled {
		influx, err := influxdb.Connect(ctx, cfg.InfluxDB, func(err error) {
			a.log.Error("InfluxDB write error", "error", err)
		})
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			a.log.Info("closing InfluxDB connection")
			if closeErr := influx.Close(); closeErr != nil {
				a.log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()

		version, err := influx.HealthCheck(ctx)
		if err != nil {
			return fmt.Errorf("checking InfluxDB: %w", err)
		}
		a.log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
			"server_version", version,
		)

		reporter := telemetry.NewReporter(s, influx, telemetry.Options{
			DatabasePath: a.db.Path(),
			CacheDir:     a.cfg.Storage.CacheDir,
			DocumentsDir: a.cfg.Storage.DocumentsDir,
			Gatherer:     reg,
			Logger:       a.log,
		})
		interval := a.cfg.TelemetryInterval()
		loops = append(loops, func(ctx context.Context) { reporter.Run(ctx, interval) })
	} else {
		a.log.Info("telemetry disabled")
	}

	var wg sync.WaitGroup
	for _, loop := range loops {
		loop := loop
		wg.Add(1)
		go func() {
			defer wg.Done()
			loop(ctx)
		}()
	}

	a.log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	a.log.Info("shutdown signal received, cleaning up")
	wg.Wait()

	a.log.Info("dealer-core stopped")
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
