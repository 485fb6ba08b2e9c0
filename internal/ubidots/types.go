package ubidots

import (
	"encoding/json"
	"strconv"
	"time"
)

// Property keys Ubidots stores inside a device's property bag.
const (
	PropDeviceType    = "_device_type"
	PropLocationFixed = "_location_fixed"
)

// Device is one record of the v2.0 device list.
type Device struct {
	ID         string         `json:"id"`
	Label      string         `json:"label"`
	Name       string         `json:"name"`
	DeviceType string         `json:"deviceType"`
	Properties map[string]any `json:"properties"`
}

// Type returns the device-type tag, preferring the property bag.
func (d Device) Type() string {
	if v, ok := d.Properties[PropDeviceType].(string); ok && v != "" {
		return v
	}
	return d.DeviceType
}

// DeviceRef is the device back-reference embedded in variable records.
type DeviceRef struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Name  string `json:"name"`
}

// Variable is one record of a device's v2.0 variable list.
type Variable struct {
	ID     string    `json:"id"`
	Label  string    `json:"label"`
	Name   string    `json:"name"`
	Device DeviceRef `json:"device"`
}

// Reading is one value of a variable.
type Reading struct {
	// Timestamp is milliseconds since the Unix epoch.
	Timestamp int64
	// CreatedAt is the human-readable time of the reading.
	CreatedAt string
	Value     float64
	Context   map[string]any
}

// Time returns the reading timestamp as a time.Time in UTC.
func (r Reading) Time() time.Time {
	return time.UnixMilli(r.Timestamp).UTC()
}

// createdAtLayout formats CreatedAt when the API only returns epoch millis.
const createdAtLayout = "2006-01-02 15:04:05 -0700"

// UnmarshalJSON accepts created_at as either a string or epoch millis.
func (r *Reading) UnmarshalJSON(data []byte) error {
	var raw struct {
		Timestamp int64           `json:"timestamp"`
		CreatedAt json.RawMessage `json:"created_at"`
		Value     float64         `json:"value"`
		Context   map[string]any  `json:"context"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	r.Timestamp = raw.Timestamp
	r.Value = raw.Value
	r.Context = raw.Context
	r.CreatedAt = ""

	if len(raw.CreatedAt) > 0 && string(raw.CreatedAt) != "null" {
		var s string
		if err := json.Unmarshal(raw.CreatedAt, &s); err == nil {
			r.CreatedAt = s
		} else if ms, err := strconv.ParseInt(string(raw.CreatedAt), 10, 64); err == nil {
			r.CreatedAt = time.UnixMilli(ms).UTC().Format(createdAtLayout)
		}
	}
	if r.CreatedAt == "" && r.Timestamp != 0 {
		r.CreatedAt = r.Time().Format(createdAtLayout)
	}
	return nil
}
