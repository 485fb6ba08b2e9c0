package pipeline

import (
	"context"
	"fmt"
	"slices"

	"github.com/awqp/ubidots-export/internal/directory"
	"github.com/awqp/ubidots-export/internal/infrastructure/logging"
	"github.com/awqp/ubidots-export/internal/reshape"
)

// Logger is the subset of logging.Logger used by the pipeline.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Result is the outcome of one run. Treat it as read-only: it may be shared
// between cache readers.
type Result struct {
	DeviceType string

	// Wide is the full pivot: name, every label, lat, lng.
	Wide *reshape.WideTable

	// Export is Wide narrowed to the configured export columns.
	Export *reshape.WideTable

	// Variables is the long table the pivot was built from.
	Variables []directory.LongRow

	// Devices contributed at least one variable; Dropped had none.
	Devices []directory.DeviceRow
	Dropped []directory.DeviceRow
}

// Pipeline runs directory, join and reshape against a Source.
type Pipeline struct {
	columns []string
	logger  Logger
}

// New creates a Pipeline narrowing to columns. Empty columns select
// reshape.DefaultExportColumns; a nil logger discards output.
func New(columns []string, logger Logger) *Pipeline {
	if len(columns) == 0 {
		columns = reshape.DefaultExportColumns
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Pipeline{
		columns: slices.Clone(columns),
		logger:  logger,
	}
}

// Columns returns the export column set.
func (p *Pipeline) Columns() []string {
	return slices.Clone(p.columns)
}

// Run executes the pipeline once for deviceType.
func (p *Pipeline) Run(ctx context.Context, src directory.Source, deviceType string) (*Result, error) {
	builder, err := directory.NewBuilder(src, p.logger)
	if err != nil {
		return nil, err
	}

	joined, err := builder.FilterAndJoin(ctx, deviceType)
	if err != nil {
		return nil, err
	}

	wide, err := reshape.Pivot(joined.Rows, joined.Devices)
	if err != nil {
		return nil, fmt.Errorf("pivoting %s: %w", deviceType, err)
	}

	res := &Result{
		DeviceType: deviceType,
		Wide:       wide,
		Export:     wide.Narrow(p.columns),
		Variables:  joined.Rows,
		Devices:    joined.Devices,
		Dropped:    joined.Dropped,
	}

	p.logger.Info("pipeline run complete",
		"device_type", deviceType,
		"devices", len(res.Devices),
		"dropped", len(res.Dropped),
		"variables", len(res.Variables),
		"columns", len(wide.Columns),
	)
	return res, nil
}

// VariableID returns the id of the variable labelled label on the device
// named deviceName, if the run saw one.
func (r *Result) VariableID(deviceName, label string) (string, bool) {
	for _, row := range r.Variables {
		if row.DeviceName == deviceName && row.Label == label {
			return row.VariableID, true
		}
	}
	return "", false
}
