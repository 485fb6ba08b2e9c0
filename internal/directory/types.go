package directory

import (
	"context"

	"github.com/awqp/ubidots-export/internal/ubidots"
)

// Source is the upstream the builders read from. *ubidots.Client implements it.
type Source interface {
	ListDevices(ctx context.Context) ([]ubidots.Device, error)
	ListVariables(ctx context.Context, deviceID string) ([]ubidots.Variable, error)
}

// Logger is the subset of logging.Logger used by the builders.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Location is a device's fixed latitude/longitude.
type Location struct {
	Lat float64
	Lng float64
}

// DeviceRow is one device of the directory.
type DeviceRow struct {
	ID    string
	Label string
	Name  string
	Type  string

	// Location is nil when the device has no usable fixed location.
	Location *Location

	// Properties holds the flattened property bag, keyed by property name.
	Properties map[string]string
}

// DeviceDirectory is the flattened device list, unique by ID, in upstream order.
type DeviceDirectory struct {
	// PropertyColumns is the sorted union of property keys across all devices.
	PropertyColumns []string
	Devices         []DeviceRow
}

// VariableRow is one variable of a device.
type VariableRow struct {
	ID         string
	Label      string
	Name       string
	DeviceName string
}

// LongRow is one (device, label, id) triple.
type LongRow struct {
	DeviceName string
	Label      string
	VariableID string
}

// JoinResult is the outcome of joining a set of devices with their variables.
type JoinResult struct {
	// Rows is the long table, grouped by device in input order.
	Rows []LongRow

	// Devices are the input devices that contributed at least one variable.
	Devices []DeviceRow

	// Dropped are the input devices that had no variables.
	Dropped []DeviceRow
}
