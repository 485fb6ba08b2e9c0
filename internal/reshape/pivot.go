package reshape

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/awqp/ubidots-export/internal/directory"
)

// Pivot turns the long table into the wide table.
//
// Rows follow the first appearance of each device name in rows. Label
// columns are sorted and sit between name and lat/lng; each cell holds the
// variable id. Coordinates are left-joined by device name against devices,
// so a device without a location keeps empty lat/lng cells. Labels equal to
// a fixed column name are skipped.
func Pivot(rows []directory.LongRow, devices []directory.DeviceRow) (*WideTable, error) {
	var (
		names  []string
		byName = make(map[string]map[string]string)
		labels = make(map[string]struct{})
	)

	for _, r := range rows {
		if isFixedColumn(r.Label) {
			continue
		}
		cells, ok := byName[r.DeviceName]
		if !ok {
			cells = make(map[string]string)
			byName[r.DeviceName] = cells
			names = append(names, r.DeviceName)
		}
		if _, dup := cells[r.Label]; dup {
			return nil, fmt.Errorf("%w: device %q label %q", ErrDuplicatePair, r.DeviceName, r.Label)
		}
		cells[r.Label] = r.VariableID
		labels[r.Label] = struct{}{}
	}

	sortedLabels := make([]string, 0, len(labels))
	for l := range labels {
		sortedLabels = append(sortedLabels, l)
	}
	sort.Strings(sortedLabels)

	locations := locationsByName(devices)

	columns := make([]string, 0, len(sortedLabels)+3)
	columns = append(columns, ColumnName)
	columns = append(columns, sortedLabels...)
	columns = append(columns, ColumnLat, ColumnLng)

	table := &WideTable{
		Columns: columns,
		Rows:    make([][]string, 0, len(names)),
	}
	for _, name := range names {
		row := make([]string, 0, len(columns))
		row = append(row, name)
		for _, l := range sortedLabels {
			row = append(row, byName[name][l])
		}
		lat, lng := "", ""
		if loc := locations[name]; loc != nil {
			lat = formatCoord(loc.Lat)
			lng = formatCoord(loc.Lng)
		}
		row = append(row, lat, lng)
		table.Rows = append(table.Rows, row)
	}

	return table, nil
}

// locationsByName indexes device locations by display name. The first
// device carrying a name wins.
func locationsByName(devices []directory.DeviceRow) map[string]*directory.Location {
	out := make(map[string]*directory.Location, len(devices))
	for _, d := range devices {
		if _, seen := out[d.Name]; seen {
			continue
		}
		out[d.Name] = d.Location
	}
	return out
}

func isFixedColumn(label string) bool {
	return label == ColumnName || label == ColumnLat || label == ColumnLng
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
