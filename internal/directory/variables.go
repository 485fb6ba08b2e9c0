package directory

import (
	"context"
	"fmt"
)

// BuildVariableDirectory lists one device's variables. The device name is
// taken from the first record's device reference. No variables yields an
// empty slice and no error.
func (b *Builder) BuildVariableDirectory(ctx context.Context, deviceID string) ([]VariableRow, error) {
	vars, err := b.src.ListVariables(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("building variable directory: %w", err)
	}

	rows := make([]VariableRow, 0, len(vars))
	if len(vars) == 0 {
		return rows, nil
	}

	deviceName := vars[0].Device.Name
	for _, v := range vars {
		rows = append(rows, VariableRow{
			ID:         v.ID,
			Label:      v.Label,
			Name:       v.Name,
			DeviceName: deviceName,
		})
	}
	return rows, nil
}
