package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/awqp/ubidots-export/internal/export"
	"github.com/awqp/ubidots-export/internal/forward"
	"github.com/awqp/ubidots-export/internal/history"
	"github.com/awqp/ubidots-export/internal/infrastructure/database"
	"github.com/awqp/ubidots-export/internal/infrastructure/influxdb"
	"github.com/awqp/ubidots-export/internal/infrastructure/logging"
	"github.com/awqp/ubidots-export/internal/infrastructure/mqtt"
	"github.com/awqp/ubidots-export/internal/pipeline"
	"github.com/awqp/ubidots-export/internal/ubidots"
	"github.com/awqp/ubidots-export/migrations"
)

// runExport runs the pipeline once and writes the CSV file.
func (a *app) runExport(ctx context.Context, deviceType string) error {
	client, err := a.connect(ctx)
	if err != nil {
		return err
	}

	res, err := pipeline.New(a.cfg.Export.Columns, a.log).Run(ctx, client, deviceType)
	if err != nil {
		return fmt.Errorf("exporting %s: %w", deviceType, err)
	}
	for _, d := range res.Dropped {
		a.log.Warn("device has no variables", "device", d.Name, "id", d.ID)
	}

	file, err := export.NewWriter(a.cfg.Export).Write(res.Export)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Wrote %d devices to %s\n", file.Rows, file.Path)

	a.record(ctx, res, file)

	if err := a.forwardExport(ctx, client, res, file); err != nil {
		return fmt.Errorf("%s written but forwarding failed: %w", file.Name, err)
	}

	return a.exitDelay(ctx)
}

// record stores the run in the history database. Failures are logged only:
// the file is already written.
func (a *app) record(ctx context.Context, res *pipeline.Result, file *export.File) {
	db, repo, err := a.openHistory(ctx)
	if err != nil {
		a.log.Warn("export history unavailable", "error", err)
		return
	}
	if db == nil {
		return
	}
	defer db.Close() //nolint:errcheck // Read-only after Create

	run := history.NewRun(res.DeviceType, history.SourceCLI, file.Name, res.Export.Columns, res.Export.Rows)
	run.CreatedAt = file.Written.UTC()
	for _, d := range res.Dropped {
		run.Dropped = append(run.Dropped, d.Name)
	}
	if err := repo.Create(ctx, run); err != nil {
		a.log.Warn("recording export failed", "file", file.Name, "error", err)
		return
	}
	a.log.Info("export recorded", "id", run.ID, "file", file.Name)
}

// openHistory opens and migrates the history database. A disabled database
// returns nils.
func (a *app) openHistory(ctx context.Context) (*database.DB, *history.SQLiteRepository, error) {
	if !a.cfg.Database.Enabled {
		return nil, nil, nil
	}
	db, err := database.Open(a.cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close() //nolint:errcheck // Already failing
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, history.NewSQLiteRepository(db.DB), nil
}

// forwardExport hands the export to every enabled sink.
func (a *app) forwardExport(ctx context.Context, client *ubidots.Client, res *pipeline.Result, file *export.File) error {
	var sinks []forward.Forwarder

	if a.cfg.MQTT.Enabled {
		mc, err := mqtt.Connect(a.cfg.MQTT, a.log)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			if closeErr := mc.Close(); closeErr != nil {
				a.log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		sinks = append(sinks, forward.NewMQTT(mc))
	}

	if a.cfg.InfluxDB.Enabled {
		ic, err := influxdb.Connect(ctx, a.cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			if closeErr := ic.Close(); closeErr != nil {
				a.log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		sinks = append(sinks, forward.NewInflux(client, ic, a.cfg.Ubidots.ValuesPageSize, a.log))
	}

	if len(sinks) == 0 {
		return nil
	}
	return forward.Run(ctx, forward.Delivery{
		Result:     res,
		FileName:   file.Name,
		ExportedAt: file.Written,
	}, a.log, sinks...)
}

// exitDelay keeps the process alive for export.exit_delay so a console
// window stays readable.
func (a *app) exitDelay(ctx context.Context) error {
	if a.cfg.Export.ExitDelay <= 0 {
		return nil
	}
	timer := time.NewTimer(a.cfg.Export.ExitDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
	return nil
}

// runHistory prints recent export runs.
func (a *app) runHistory(ctx context.Context, deviceType string, limit int) error {
	db, repo, err := a.openHistory(ctx)
	if err != nil {
		return err
	}
	if db == nil {
		return fmt.Errorf("export history requires database.enabled")
	}
	defer db.Close() //nolint:errcheck // Read-only

	list, err := repo.List(ctx, history.Filter{DeviceType: deviceType, Limit: limit})
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tSOURCE\tROWS\tFILE")
	for _, run := range list.Runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
			run.ID, run.CreatedAt.Local().Format(time.DateTime), run.Source, run.RowCount, run.FileName)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%d of %d runs for %s\n", len(list.Runs), list.Total, deviceType)
	return nil
}

// runTokens checks the first token of every device of deviceType.
func (a *app) runTokens(ctx context.Context, deviceType string) error {
	client, err := a.connect(ctx)
	if err != nil {
		return err
	}

	devices, err := client.ListDevices(ctx)
	if err != nil {
		return fmt.Errorf("listing devices: %w", err)
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DEVICE\tTOKEN\tVALID")
	for _, d := range devices {
		if d.Type() != deviceType {
			continue
		}
		tok, err := client.DeviceToken(ctx, d.ID)
		if err != nil {
			a.log.Warn("device token unavailable", "device", d.Name, "error", err)
			fmt.Fprintf(tw, "%s\t-\t-\n", d.Name)
			continue
		}
		valid, err := client.ValidateDeviceToken(ctx, d.ID, tok)
		if err != nil {
			return fmt.Errorf("validating token of %s: %w", d.Name, err)
		}
		fmt.Fprintf(tw, "%s\t%s\t%t\n", d.Name, logging.Redact(tok), valid)
	}
	return tw.Flush()
}
