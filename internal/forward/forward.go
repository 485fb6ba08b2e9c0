package forward

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/awqp/ubidots-export/internal/infrastructure/logging"
	"github.com/awqp/ubidots-export/internal/pipeline"
	"github.com/awqp/ubidots-export/internal/reshape"
)

// Logger is the subset of logging.Logger used by forwarders.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Delivery is one export to forward.
type Delivery struct {
	Result     *pipeline.Result
	FileName   string
	ExportedAt time.Time
}

// Forwarder sends a delivery to one sink.
type Forwarder interface {
	Name() string
	Forward(ctx context.Context, d Delivery) error
}

// Run forwards d to every forwarder in order and joins their errors.
func Run(ctx context.Context, d Delivery, logger Logger, forwarders ...Forwarder) error {
	if logger == nil {
		logger = logging.Discard()
	}

	var errs []error
	for _, f := range forwarders {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := f.Forward(ctx, d); err != nil {
			logger.Warn("forwarding failed", "sink", f.Name(), "file", d.FileName, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", f.Name(), err))
			continue
		}
		logger.Info("export forwarded", "sink", f.Name(), "file", d.FileName)
	}
	return errors.Join(errs...)
}

// rowCells maps each export column to the row's cell.
func rowCells(table *reshape.WideTable, row []string) map[string]string {
	cells := make(map[string]string, len(table.Columns))
	for i, col := range table.Columns {
		cells[col] = row[i]
	}
	return cells
}

func isLabelColumn(col string) bool {
	return col != reshape.ColumnName && col != reshape.ColumnLat && col != reshape.ColumnLng
}
