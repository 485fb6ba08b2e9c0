package ubidots

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
)

// ValidateToken checks that the client's token is accepted by fetching a
// single-item device page. A rejected token returns ErrUnauthorized.
func (c *Client) ValidateToken(ctx context.Context) error {
	resp, err := c.Get(ctx, c.endpoint("/api/v2.0/devices/", url.Values{"page_size": {"1"}}))
	if err != nil {
		return err
	}
	return resp.Err()
}

// DeviceToken returns the first token issued to a device.
func (c *Client) DeviceToken(ctx context.Context, deviceID string) (string, error) {
	path := "/api/v1.6/datasources/" + url.PathEscape(deviceID) + "/tokens"
	resp, err := c.Get(ctx, c.endpoint(path, nil))
	if err != nil {
		return "", err
	}
	if err := resp.Err(); err != nil {
		return "", err
	}

	var p struct {
		Results []struct {
			Token string `json:"token"`
		} `json:"results"`
	}
	if err := json.Unmarshal(resp.Body, &p); err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrMalformedPage, resp.URL, err)
	}
	if len(p.Results) == 0 || p.Results[0].Token == "" {
		return "", fmt.Errorf("%w: %s", ErrNoDeviceToken, deviceID)
	}
	return p.Results[0].Token, nil
}

// ValidateDeviceToken reports whether token can read the variables of the
// device. A rejected token is reported as false with a nil error.
func (c *Client) ValidateDeviceToken(ctx context.Context, deviceID, token string) (bool, error) {
	scoped := c.WithToken(token)
	path := "/api/v2.0/devices/" + url.PathEscape(deviceID) + "/variables/"

	resp, err := scoped.Get(ctx, scoped.endpoint(path, url.Values{"page_size": {"1"}}))
	if err != nil {
		return false, err
	}
	err = resp.Err()
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrUnauthorized):
		return false, nil
	default:
		return false, err
	}
}
