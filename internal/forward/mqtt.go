package forward

import (
	"context"
	"time"

	"github.com/awqp/ubidots-export/internal/infrastructure/mqtt"
	"github.com/awqp/ubidots-export/internal/reshape"
)

// Publisher is the subset of *mqtt.Client the MQTT forwarder uses.
type Publisher interface {
	PublishJSON(topic string, v any, retained bool) error
	Topics() mqtt.Topics
}

// Summary is published retained on the export topic.
type Summary struct {
	DeviceType string    `json:"device_type"`
	FileName   string    `json:"file_name"`
	Rows       int       `json:"rows"`
	Columns    []string  `json:"columns"`
	Devices    []string  `json:"devices"`
	Dropped    []string  `json:"dropped,omitempty"`
	ExportedAt time.Time `json:"exported_at"`
}

// DeviceMessage is one exported row.
type DeviceMessage struct {
	DeviceType string            `json:"device_type"`
	Name       string            `json:"name"`
	Variables  map[string]string `json:"variables"`
	Lat        string            `json:"lat,omitempty"`
	Lng        string            `json:"lng,omitempty"`
	ExportedAt time.Time         `json:"exported_at"`
}

// MQTT publishes exports to the partner broker.
type MQTT struct {
	pub Publisher
}

// NewMQTT creates an MQTT forwarder.
func NewMQTT(pub Publisher) *MQTT {
	return &MQTT{pub: pub}
}

// Name implements Forwarder.
func (m *MQTT) Name() string { return "mqtt" }

// Forward publishes one message per exported device, then the summary.
func (m *MQTT) Forward(ctx context.Context, d Delivery) error {
	table := d.Result.Export
	topics := m.pub.Topics()

	devices := make([]string, 0, table.Len())
	for _, row := range table.Rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := deviceMessage(d, table, row)
		if err := m.pub.PublishJSON(topics.Device(d.Result.DeviceType, msg.Name), msg, false); err != nil {
			return err
		}
		devices = append(devices, msg.Name)
	}

	dropped := make([]string, 0, len(d.Result.Dropped))
	for _, dev := range d.Result.Dropped {
		dropped = append(dropped, dev.Name)
	}

	return m.pub.PublishJSON(topics.Export(d.Result.DeviceType), Summary{
		DeviceType: d.Result.DeviceType,
		FileName:   d.FileName,
		Rows:       table.Len(),
		Columns:    table.Columns,
		Devices:    devices,
		Dropped:    dropped,
		ExportedAt: d.ExportedAt.UTC(),
	}, true)
}

func deviceMessage(d Delivery, table *reshape.WideTable, row []string) DeviceMessage {
	cells := rowCells(table, row)
	msg := DeviceMessage{
		DeviceType: d.Result.DeviceType,
		Name:       cells[reshape.ColumnName],
		Variables:  make(map[string]string),
		Lat:        cells[reshape.ColumnLat],
		Lng:        cells[reshape.ColumnLng],
		ExportedAt: d.ExportedAt.UTC(),
	}
	for _, col := range table.Columns {
		if isLabelColumn(col) {
			msg.Variables[col] = cells[col]
		}
	}
	return msg
}
