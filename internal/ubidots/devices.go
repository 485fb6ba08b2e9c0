package ubidots

import (
	"context"
	"fmt"
	"net/url"
)

// ListDevices returns every device visible to the token.
func (c *Client) ListDevices(ctx context.Context) ([]Device, error) {
	devices, err := fetchAllAs[Device](ctx, c, c.endpoint("/api/v2.0/devices/", c.pageQuery()))
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	return devices, nil
}

// ListVariables returns the variables of one device. A device with no
// variables yields an empty slice.
func (c *Client) ListVariables(ctx context.Context, deviceID string) ([]Variable, error) {
	path := "/api/v2.0/devices/" + url.PathEscape(deviceID) + "/variables/"
	vars, err := fetchAllAs[Variable](ctx, c, c.endpoint(path, c.pageQuery()))
	if err != nil {
		return nil, fmt.Errorf("listing variables of device %s: %w", deviceID, err)
	}
	return vars, nil
}
