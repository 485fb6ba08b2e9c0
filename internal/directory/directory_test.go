package directory

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/awqp/ubidots-export/internal/ubidots"
)

// fakeSource is an in-memory Source.
type fakeSource struct {
	devices   []ubidots.Device
	variables map[string][]ubidots.Variable
	devErr    error
	varErr    error
	varCalls  []string
}

func (f *fakeSource) ListDevices(context.Context) ([]ubidots.Device, error) {
	if f.devErr != nil {
		return nil, f.devErr
	}
	return f.devices, nil
}

func (f *fakeSource) ListVariables(_ context.Context, deviceID string) ([]ubidots.Variable, error) {
	f.varCalls = append(f.varCalls, deviceID)
	if f.varErr != nil {
		return nil, f.varErr
	}
	return f.variables[deviceID], nil
}

const monitorType = "pile-temp-and-cercospora-monitor"

func device(id, name, devType string, loc map[string]any) ubidots.Device {
	props := map[string]any{ubidots.PropDeviceType: devType}
	if loc != nil {
		props[ubidots.PropLocationFixed] = loc
	}
	return ubidots.Device{ID: id, Label: "lbl-" + id, Name: name, Properties: props}
}

func variable(id, label, deviceID, deviceName string) ubidots.Variable {
	return ubidots.Variable{
		ID:     id,
		Label:  label,
		Name:   label,
		Device: ubidots.DeviceRef{ID: deviceID, Name: deviceName},
	}
}

func newTestBuilder(t *testing.T, src Source) *Builder {
	t.Helper()
	b, err := NewBuilder(src, nil)
	if err != nil {
		t.Fatalf("NewBuilder() error = %v", err)
	}
	return b
}

// =============================================================================
// Device directory
// =============================================================================

func TestNewDeviceDirectory_Location(t *testing.T) {
	dir := NewDeviceDirectory([]ubidots.Device{
		device("d1", "D1", monitorType, map[string]any{"lat": 40.1, "lng": -96.1}),
		device("d2", "D2", monitorType, nil),
		device("d3", "D3", monitorType, map[string]any{"lat": "40.5", "lng": "-96.5"}),
		device("d4", "D4", monitorType, map[string]any{"lat": 40.9}),
	})

	tests := []struct {
		idx  int
		want *Location
	}{
		{0, &Location{Lat: 40.1, Lng: -96.1}},
		{1, nil},
		{2, &Location{Lat: 40.5, Lng: -96.5}},
		{3, nil},
	}
	for _, tt := range tests {
		got := dir.Devices[tt.idx].Location
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Devices[%d].Location = %+v, want %+v", tt.idx, got, tt.want)
		}
	}
}

func TestNewDeviceDirectory_FlattensProperties(t *testing.T) {
	dir := NewDeviceDirectory([]ubidots.Device{
		{ID: "a", Name: "A", Properties: map[string]any{
			"_device_type":    "x",
			"_location_fixed": map[string]any{"lat": 1.5, "lng": 2.0},
			"battery":         3.3,
			"enabled":         true,
			"note":            nil,
		}},
		{ID: "b", Name: "B", Properties: map[string]any{"firmware": "v2"}},
	})

	wantCols := []string{"_device_type", "_location_fixed", "battery", "enabled", "firmware", "note"}
	if !reflect.DeepEqual(dir.PropertyColumns, wantCols) {
		t.Errorf("PropertyColumns = %v, want %v", dir.PropertyColumns, wantCols)
	}

	props := dir.Devices[0].Properties
	checks := map[string]string{
		"_location_fixed": `{"lat":1.5,"lng":2}`,
		"battery":         "3.3",
		"enabled":         "true",
		"note":            "",
	}
	for k, want := range checks {
		if props[k] != want {
			t.Errorf("Properties[%q] = %q, want %q", k, props[k], want)
		}
	}
	if _, ok := dir.Devices[1].Properties["battery"]; ok {
		t.Error("device b should not carry device a's properties")
	}
}

func TestNewDeviceDirectory_DropsDuplicateIDs(t *testing.T) {
	dir := NewDeviceDirectory([]ubidots.Device{
		device("d1", "first", monitorType, nil),
		device("d2", "other", monitorType, nil),
		device("d1", "second", monitorType, nil),
	})
	if len(dir.Devices) != 2 {
		t.Fatalf("len(Devices) = %d, want 2", len(dir.Devices))
	}
	if dir.Devices[0].Name != "first" {
		t.Errorf("Devices[0].Name = %q, want first occurrence kept", dir.Devices[0].Name)
	}
}

func TestFilterByType(t *testing.T) {
	dir := NewDeviceDirectory([]ubidots.Device{
		device("d1", "Mon 1", monitorType, nil),
		device("d2", "Gateway", "gateway", nil),
		device("d3", "Mon 2", monitorType, nil),
		device("d4", "Near miss", monitorType+"-v2", nil),
	})

	got := dir.FilterByType(monitorType)
	if len(got) != 2 || got[0].ID != "d1" || got[1].ID != "d3" {
		t.Errorf("FilterByType() = %+v, want d1 and d3", got)
	}
	if none := dir.FilterByType("unknown"); len(none) != 0 {
		t.Errorf("FilterByType(unknown) = %+v, want empty", none)
	}
}

func TestBuildDeviceDirectory_SourceError(t *testing.T) {
	boom := errors.New("boom")
	b := newTestBuilder(t, &fakeSource{devErr: boom})
	if _, err := b.BuildDeviceDirectory(context.Background()); !errors.Is(err, boom) {
		t.Errorf("BuildDeviceDirectory() error = %v, want wrapped boom", err)
	}
}

// =============================================================================
// Variable directory and join
// =============================================================================

func TestBuildVariableDirectory(t *testing.T) {
	src := &fakeSource{variables: map[string][]ubidots.Variable{
		"d1": {variable("v1", "t", "d1", "Device One"), variable("v2", "rh", "d1", "ignored")},
	}}
	b := newTestBuilder(t, src)

	rows, err := b.BuildVariableDirectory(context.Background(), "d1")
	if err != nil {
		t.Fatalf("BuildVariableDirectory() error = %v", err)
	}
	want := []VariableRow{
		{ID: "v1", Label: "t", Name: "t", DeviceName: "Device One"},
		{ID: "v2", Label: "rh", Name: "rh", DeviceName: "Device One"},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("rows = %+v, want %+v", rows, want)
	}

	empty, err := b.BuildVariableDirectory(context.Background(), "none")
	if err != nil {
		t.Fatalf("BuildVariableDirectory(none) error = %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("BuildVariableDirectory(none) = %v, want empty non-nil", empty)
	}
}

func TestFilterAndJoin(t *testing.T) {
	src := &fakeSource{
		devices: []ubidots.Device{
			device("d1", "D1", monitorType, map[string]any{"lat": 40.1, "lng": -96.1}),
			device("gw", "Gateway", "gateway", nil),
			device("d2", "D2", monitorType, nil),
			device("d3", "D3", monitorType, nil),
		},
		variables: map[string][]ubidots.Variable{
			"d1": {variable("v1", "t", "d1", "D1"), variable("v2", "rh", "d1", "D1")},
			"gw": {variable("g1", "t", "gw", "Gateway")},
			"d3": {variable("v3", "t", "d3", "D3")},
		},
	}
	b := newTestBuilder(t, src)

	res, err := b.FilterAndJoin(context.Background(), monitorType)
	if err != nil {
		t.Fatalf("FilterAndJoin() error = %v", err)
	}

	wantRows := []LongRow{
		{DeviceName: "D1", Label: "t", VariableID: "v1"},
		{DeviceName: "D1", Label: "rh", VariableID: "v2"},
		{DeviceName: "D3", Label: "t", VariableID: "v3"},
	}
	if !reflect.DeepEqual(res.Rows, wantRows) {
		t.Errorf("Rows = %+v, want %+v", res.Rows, wantRows)
	}
	if len(res.Devices) != 2 || res.Devices[0].ID != "d1" || res.Devices[1].ID != "d3" {
		t.Errorf("Devices = %+v, want d1 and d3", res.Devices)
	}
	if len(res.Dropped) != 1 || res.Dropped[0].ID != "d2" {
		t.Errorf("Dropped = %+v, want d2", res.Dropped)
	}
	// The gateway is never queried for variables.
	if !reflect.DeepEqual(src.varCalls, []string{"d1", "d2", "d3"}) {
		t.Errorf("variable calls = %v, want [d1 d2 d3]", src.varCalls)
	}
}

func TestFilterAndJoin_EmptyType(t *testing.T) {
	b := newTestBuilder(t, &fakeSource{})
	if _, err := b.FilterAndJoin(context.Background(), ""); !errors.Is(err, ErrEmptyDeviceType) {
		t.Errorf("FilterAndJoin(\"\") error = %v, want ErrEmptyDeviceType", err)
	}
}

func TestJoin_VariableError(t *testing.T) {
	boom := errors.New("upstream down")
	b := newTestBuilder(t, &fakeSource{varErr: boom})
	_, err := b.Join(context.Background(), []DeviceRow{{ID: "d1", Name: "D1"}})
	if !errors.Is(err, boom) {
		t.Errorf("Join() error = %v, want wrapped upstream error", err)
	}
}

func TestNewBuilder_NilSource(t *testing.T) {
	if _, err := NewBuilder(nil, nil); !errors.Is(err, ErrNilSource) {
		t.Errorf("NewBuilder(nil) error = %v, want ErrNilSource", err)
	}
}
