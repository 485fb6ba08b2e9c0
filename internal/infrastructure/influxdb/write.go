package influxdb

import (
	"context"
	"fmt"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Reading is one sensor value to store.
type Reading struct {
	DeviceType string
	Device     string
	Label      string
	VariableID string
	Value      float64
	Time       time.Time
}

// WriteReadings writes readings in batches. It stops at the first rejected
// batch; earlier batches stay written.
func (c *Client) WriteReadings(ctx context.Context, readings []Reading) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	for start := 0; start < len(readings); start += c.batchSize {
		end := min(start+c.batchSize, len(readings))

		points := make([]*write.Point, 0, end-start)
		for _, r := range readings[start:end] {
			points = append(points, c.newPoint(r))
		}
		if err := c.writeAPI.WritePoint(ctx, points...); err != nil {
			return fmt.Errorf("%w: points %d-%d: %w", ErrWriteFailed, start, end-1, err)
		}
	}
	return nil
}

func (c *Client) newPoint(r Reading) *write.Point {
	return write.NewPoint(
		c.measurement,
		map[string]string{
			"device_type": r.DeviceType,
			"device":      r.Device,
			"label":       r.Label,
			"variable_id": r.VariableID,
		},
		map[string]any{
			"value": r.Value,
		},
		r.Time,
	)
}
