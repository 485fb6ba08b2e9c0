package directory

import (
	"context"
	"fmt"
)

// Join builds the long table for devices, one device at a time, tagging each
// variable with the owning device's directory name. Devices without
// variables are dropped and reported.
func (b *Builder) Join(ctx context.Context, devices []DeviceRow) (*JoinResult, error) {
	res := &JoinResult{
		Rows:    make([]LongRow, 0),
		Devices: make([]DeviceRow, 0, len(devices)),
		Dropped: make([]DeviceRow, 0),
	}

	for _, d := range devices {
		vars, err := b.BuildVariableDirectory(ctx, d.ID)
		if err != nil {
			return nil, fmt.Errorf("device %s (%s): %w", d.Name, d.ID, err)
		}
		if len(vars) == 0 {
			b.logger.Warn("device has no variables, dropped from export",
				"device", d.Name,
				"device_id", d.ID,
			)
			res.Dropped = append(res.Dropped, d)
			continue
		}

		res.Devices = append(res.Devices, d)
		for _, v := range vars {
			res.Rows = append(res.Rows, LongRow{
				DeviceName: d.Name,
				Label:      v.Label,
				VariableID: v.ID,
			})
		}
	}

	return res, nil
}

// FilterAndJoin builds the device directory, keeps the devices of
// deviceType and joins them with their variables.
func (b *Builder) FilterAndJoin(ctx context.Context, deviceType string) (*JoinResult, error) {
	if deviceType == "" {
		return nil, ErrEmptyDeviceType
	}

	dir, err := b.BuildDeviceDirectory(ctx)
	if err != nil {
		return nil, err
	}

	devices := dir.FilterByType(deviceType)
	b.logger.Info("devices matched type", "device_type", deviceType, "devices", len(devices))

	return b.Join(ctx, devices)
}
