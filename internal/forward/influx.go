package forward

import (
	"context"
	"fmt"

	"github.com/awqp/ubidots-export/internal/infrastructure/influxdb"
	"github.com/awqp/ubidots-export/internal/reshape"
	"github.com/awqp/ubidots-export/internal/ubidots"
)

// ReadingSource fetches recent readings. *ubidots.Client implements it.
type ReadingSource interface {
	Values(ctx context.Context, variableID string, limit int) ([]ubidots.Reading, error)
}

// PointWriter stores readings. *influxdb.Client implements it.
type PointWriter interface {
	WriteReadings(ctx context.Context, readings []influxdb.Reading) error
}

// Influx copies the latest readings of every exported variable into
// InfluxDB.
type Influx struct {
	src    ReadingSource
	w      PointWriter
	limit  int
	logger Logger
}

// NewInflux creates an InfluxDB forwarder reading up to limit values per
// variable.
func NewInflux(src ReadingSource, w PointWriter, limit int, logger Logger) *Influx {
	if limit < 1 {
		limit = 1
	}
	return &Influx{src: src, w: w, limit: limit, logger: logger}
}

// Name implements Forwarder.
func (f *Influx) Name() string { return "influxdb" }

// Forward reads each non-empty variable cell of the export table and writes
// all readings in one call.
func (f *Influx) Forward(ctx context.Context, d Delivery) error {
	table := d.Result.Export
	var points []influxdb.Reading

	for _, row := range table.Rows {
		cells := rowCells(table, row)
		name := cells[reshape.ColumnName]
		for _, col := range table.Columns {
			varID := cells[col]
			if !isLabelColumn(col) || varID == "" {
				continue
			}

			readings, err := f.src.Values(ctx, varID, f.limit)
			if err != nil {
				return fmt.Errorf("reading %s/%s: %w", name, col, err)
			}
			for _, r := range readings {
				points = append(points, influxdb.Reading{
					DeviceType: d.Result.DeviceType,
					Device:     name,
					Label:      col,
					VariableID: varID,
					Value:      r.Value,
					Time:       r.Time(),
				})
			}
		}
	}

	if f.logger != nil {
		f.logger.Info("writing readings to influxdb", "points", len(points), "file", d.FileName)
	}
	if len(points) == 0 {
		return nil
	}
	return f.w.WriteReadings(ctx, points)
}
