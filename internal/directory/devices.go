package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/awqp/ubidots-export/internal/ubidots"
)

// BuildDeviceDirectory fetches every device and flattens it.
func (b *Builder) BuildDeviceDirectory(ctx context.Context) (*DeviceDirectory, error) {
	devices, err := b.src.ListDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("building device directory: %w", err)
	}

	dir := NewDeviceDirectory(devices)
	if dups := len(devices) - len(dir.Devices); dups > 0 {
		b.logger.Warn("duplicate device ids dropped", "count", dups)
	}
	b.logger.Info("device directory built",
		"devices", len(dir.Devices),
		"property_columns", len(dir.PropertyColumns),
	)
	return dir, nil
}

// NewDeviceDirectory flattens raw device records. Records repeating an ID
// already seen are dropped.
func NewDeviceDirectory(devices []ubidots.Device) *DeviceDirectory {
	dir := &DeviceDirectory{
		PropertyColumns: []string{},
		Devices:         make([]DeviceRow, 0, len(devices)),
	}

	seenIDs := make(map[string]struct{}, len(devices))
	columns := make(map[string]struct{})

	for _, d := range devices {
		if _, dup := seenIDs[d.ID]; dup {
			continue
		}
		seenIDs[d.ID] = struct{}{}

		row := DeviceRow{
			ID:         d.ID,
			Label:      d.Label,
			Name:       d.Name,
			Type:       d.Type(),
			Location:   fixedLocation(d.Properties),
			Properties: make(map[string]string, len(d.Properties)),
		}
		for k, v := range d.Properties {
			row.Properties[k] = flatten(v)
			columns[k] = struct{}{}
		}
		dir.Devices = append(dir.Devices, row)
	}

	for k := range columns {
		dir.PropertyColumns = append(dir.PropertyColumns, k)
	}
	sort.Strings(dir.PropertyColumns)

	return dir
}

// FilterByType returns the devices whose type equals deviceType exactly, in
// directory order.
func (d *DeviceDirectory) FilterByType(deviceType string) []DeviceRow {
	out := make([]DeviceRow, 0)
	for _, row := range d.Devices {
		if row.Type == deviceType {
			out = append(out, row)
		}
	}
	return out
}

// fixedLocation reads _location_fixed.{lat,lng}. Any missing or
// non-numeric coordinate yields nil.
func fixedLocation(props map[string]any) *Location {
	raw, ok := props[ubidots.PropLocationFixed].(map[string]any)
	if !ok {
		return nil
	}
	lat, okLat := toFloat(raw["lat"])
	lng, okLng := toFloat(raw["lng"])
	if !okLat || !okLng {
		return nil
	}
	return &Location{Lat: lat, Lng: lng}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// flatten renders a property value as a single cell. Nested values are
// rendered as compact JSON.
func flatten(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	}
}
