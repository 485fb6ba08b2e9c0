package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/awqp/ubidots-export/internal/directory"
	"github.com/awqp/ubidots-export/internal/history"
	"github.com/awqp/ubidots-export/internal/infrastructure/config"
	"github.com/awqp/ubidots-export/internal/infrastructure/database"
	"github.com/awqp/ubidots-export/internal/infrastructure/logging"
	"github.com/awqp/ubidots-export/internal/pipeline"
	"github.com/awqp/ubidots-export/internal/ubidots"
	"github.com/awqp/ubidots-export/migrations"
)

const monitorType = "pile-temp-and-cercospora-monitor"

// fakeSource serves two monitors, one without a location, and a gateway.
type fakeSource struct {
	err   error
	calls *atomic.Int32
}

func (f fakeSource) ListDevices(context.Context) ([]ubidots.Device, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return []ubidots.Device{
		{ID: "d1", Name: "D1", Properties: map[string]any{
			ubidots.PropDeviceType:    monitorType,
			ubidots.PropLocationFixed: map[string]any{"lat": 40.1, "lng": -96.1},
		}},
		{ID: "d2", Name: "D2", Properties: map[string]any{ubidots.PropDeviceType: monitorType}},
		{ID: "d3", Name: "D3", Properties: map[string]any{ubidots.PropDeviceType: monitorType}},
		{ID: "gw", Name: "Gateway", Properties: map[string]any{ubidots.PropDeviceType: "gateway"}},
	}, nil
}

func (f fakeSource) ListVariables(_ context.Context, deviceID string) ([]ubidots.Variable, error) {
	switch deviceID {
	case "d1":
		return []ubidots.Variable{
			{ID: "v1", Label: "t", Device: ubidots.DeviceRef{ID: "d1", Name: "D1"}},
			{ID: "v2", Label: "rh", Device: ubidots.DeviceRef{ID: "d1", Name: "D1"}},
			{ID: "v5", Label: "battery", Device: ubidots.DeviceRef{ID: "d1", Name: "D1"}},
		}, nil
	case "d2":
		return []ubidots.Variable{
			{ID: "v3", Label: "t", Device: ubidots.DeviceRef{ID: "d2", Name: "D2"}},
			{ID: "v4", Label: "rh", Device: ubidots.DeviceRef{ID: "d2", Name: "D2"}},
		}, nil
	}
	return nil, nil
}

type testEnv struct {
	srv    *Server
	calls  *atomic.Int32
	tokens []string
}

type option func(*Deps, *fakeSource)

func withHistory(repo history.Repository) option {
	return func(d *Deps, _ *fakeSource) { d.History = repo }
}

func withSourceError(err error) option {
	return func(_ *Deps, f *fakeSource) { f.err = err }
}

func withServerToken(tok string) option {
	return func(d *Deps, _ *fakeSource) { d.Token = tok }
}

// testServer creates a Server whose cache runs against fakeSource.
func testServer(t *testing.T, opts ...option) *testEnv {
	t.Helper()

	env := &testEnv{calls: &atomic.Int32{}}
	src := fakeSource{calls: env.calls}
	deps := Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
			Port: 0,
			Timeouts: config.APITimeoutConfig{
				Read:  5,
				Write: 5,
				Idle:  5,
			},
		},
		WS: config.WebSocketConfig{
			MaxMessageSize: 4096,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logger:       logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test"),
		DeviceType:   monitorType,
		ExportPrefix: "unl_export",
		Version:      "test",
	}
	for _, opt := range opts {
		opt(&deps, &src)
	}

	cache, err := pipeline.NewCache(pipeline.New(nil, nil), func(token string) (directory.Source, error) {
		if token == "" {
			return nil, ubidots.ErrMissingToken
		}
		env.tokens = append(env.tokens, token)
		return src, nil
	})
	if err != nil {
		t.Fatalf("NewCache() error = %v", err)
	}
	deps.Cache = cache

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	srv.now = func() time.Time { return time.Date(2026, 10, 19, 9, 30, 0, 0, time.Local) }
	env.srv = srv
	return env
}

func (e *testEnv) do(t *testing.T, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set(ubidots.AuthHeader, token)
	}
	rec := httptest.NewRecorder()
	e.srv.buildRouter().ServeHTTP(rec, req)
	return rec
}

func newHistory(t *testing.T) *history.SQLiteRepository {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "api.db"),
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return history.NewSQLiteRepository(db.DB)
}

// =============================================================================
// Construction
// =============================================================================

func TestNew_RequiredDeps(t *testing.T) {
	cache, err := pipeline.NewCache(pipeline.New(nil, nil), func(string) (directory.Source, error) { return nil, nil })
	if err != nil {
		t.Fatalf("NewCache() error = %v", err)
	}
	logger := logging.Discard()

	tests := []struct {
		name string
		deps Deps
	}{
		{"no logger", Deps{Cache: cache, DeviceType: monitorType}},
		{"no cache", Deps{Logger: logger, DeviceType: monitorType}},
		{"no device type", Deps{Logger: logger, Cache: cache}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.deps); err == nil {
				t.Error("New() expected error, got nil")
			}
		})
	}
}

func TestHealthCheck_NotStarted(t *testing.T) {
	env := testServer(t)
	if err := env.srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start expected error")
	}
	if err := env.srv.Close(); err != nil {
		t.Errorf("Close() before Start error = %v", err)
	}
}

// =============================================================================
// Health
// =============================================================================

func TestHandleHealth(t *testing.T) {
	env := testServer(t)
	rec := env.do(t, "/api/v1/health", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body["status"] != "ok" || body["device_type"] != monitorType || body["history"] != false {
		t.Errorf("health body = %v", body)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header not set")
	}
}

// =============================================================================
// Devices
// =============================================================================

func TestHandleListDevices(t *testing.T) {
	env := testServer(t)
	rec := env.do(t, "/api/v1/devices", "BBFF-caller")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var body struct {
		DeviceType string `json:"device_type"`
		Devices    []struct {
			Name string   `json:"name"`
			Lat  *float64 `json:"lat"`
		} `json:"devices"`
		Dropped []struct {
			Name string `json:"name"`
		} `json:"dropped"`
		Table struct {
			Columns []string   `json:"columns"`
			Rows    [][]string `json:"rows"`
		} `json:"table"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}

	if body.DeviceType != monitorType {
		t.Errorf("device_type = %q", body.DeviceType)
	}
	if len(body.Devices) != 2 || body.Devices[0].Name != "D1" || body.Devices[1].Name != "D2" {
		t.Fatalf("devices = %+v, want D1, D2", body.Devices)
	}
	if body.Devices[0].Lat == nil || *body.Devices[0].Lat != 40.1 {
		t.Errorf("D1 lat = %v, want 40.1", body.Devices[0].Lat)
	}
	if body.Devices[1].Lat != nil {
		t.Errorf("D2 lat = %v, want omitted", *body.Devices[1].Lat)
	}
	if len(body.Dropped) != 1 || body.Dropped[0].Name != "D3" {
		t.Errorf("dropped = %+v, want D3", body.Dropped)
	}
	if got := strings.Join(body.Table.Columns, ","); got != "name,rh,t,lat,lng" {
		t.Errorf("table columns = %q, want only export columns", got)
	}
	for _, row := range body.Table.Rows {
		if len(row) != len(body.Table.Columns) || slices.Contains(row, "v5") {
			t.Errorf("table row %v carries a non-export label", row)
		}
	}
	if env.tokens[0] != "BBFF-caller" {
		t.Errorf("factory token = %q, want caller token", env.tokens[0])
	}
}

func TestHandleListDevices_CachedAndRefresh(t *testing.T) {
	env := testServer(t)

	env.do(t, "/api/v1/devices", "BBFF-a")
	env.do(t, "/api/v1/devices", "BBFF-a")
	if got := env.calls.Load(); got != 1 {
		t.Errorf("upstream listings after repeat = %d, want 1", got)
	}

	env.do(t, "/api/v1/devices", "BBFF-b")
	if got := env.calls.Load(); got != 2 {
		t.Errorf("upstream listings after new token = %d, want 2", got)
	}

	env.do(t, "/api/v1/devices?refresh=true", "BBFF-a")
	if got := env.calls.Load(); got != 3 {
		t.Errorf("upstream listings after refresh = %d, want 3", got)
	}
}

func TestHandleListDevices_ServerTokenFallback(t *testing.T) {
	env := testServer(t, withServerToken("BBFF-server"))
	rec := env.do(t, "/api/v1/devices", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if env.tokens[0] != "BBFF-server" {
		t.Errorf("factory token = %q, want server token", env.tokens[0])
	}
}

func TestHandleListDevices_Errors(t *testing.T) {
	tests := []struct {
		name     string
		srcErr   error
		token    string
		wantCode int
		wantErr  string
	}{
		{"missing token", nil, "", http.StatusUnauthorized, ErrCodeUnauthorized},
		{"rejected token", &ubidots.StatusError{StatusCode: http.StatusUnauthorized}, "BBFF-bad", http.StatusUnauthorized, ErrCodeUnauthorized},
		{"retries exhausted", fmt.Errorf("listing devices: %w", ubidots.ErrRetriesExhausted), "BBFF-x", http.StatusBadGateway, ErrCodeUpstream},
		{"transport", fmt.Errorf("listing devices: %w", ubidots.ErrTransport), "BBFF-x", http.StatusBadGateway, ErrCodeUpstream},
		{"unexpected", errors.New("boom"), "BBFF-x", http.StatusInternalServerError, ErrCodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := testServer(t, withSourceError(tt.srcErr))
			rec := env.do(t, "/api/v1/devices", tt.token)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantCode, rec.Body.String())
			}
			var body Error
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decoding body: %v", err)
			}
			if body.Code != tt.wantErr {
				t.Errorf("code = %q, want %q", body.Code, tt.wantErr)
			}
		})
	}
}

// =============================================================================
// CSV export
// =============================================================================

func TestHandleExportCSV(t *testing.T) {
	env := testServer(t)
	rec := env.do(t, "/api/v1/export.csv", "BBFF-caller")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("Content-Type = %q", ct)
	}
	wantDisp := `attachment; filename="unl_export_20261019_093000.csv"`
	if got := rec.Header().Get("Content-Disposition"); got != wantDisp {
		t.Errorf("Content-Disposition = %q, want %q", got, wantDisp)
	}

	want := "name,rh,t,lat,lng\nD1,v2,v1,40.1,-96.1\nD2,v4,v3,,\n"
	if got := rec.Body.String(); got != want {
		t.Errorf("body =\n%s\nwant\n%s", got, want)
	}
}

func TestHandleExportCSV_SelectNames(t *testing.T) {
	env := testServer(t)
	rec := env.do(t, "/api/v1/export.csv?name=D2", "BBFF-caller")

	want := "name,rh,t,lat,lng\nD2,v4,v3,,\n"
	if got := rec.Body.String(); got != want {
		t.Errorf("body = %q, want %q", got, want)
	}
}

func TestHandleExportCSV_UnknownType(t *testing.T) {
	env := testServer(t)
	rec := env.do(t, "/api/v1/export.csv?type=no-such-type", "BBFF-caller")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Body.String(); got != "name,rh,t,lat,lng\n" {
		t.Errorf("body = %q, want header only", got)
	}
}

func TestHandleExportCSV_RecordsHistory(t *testing.T) {
	repo := newHistory(t)
	env := testServer(t, withHistory(repo))

	if rec := env.do(t, "/api/v1/export.csv", "BBFF-caller"); rec.Code != http.StatusOK {
		t.Fatalf("export status = %d", rec.Code)
	}

	list, err := repo.List(context.Background(), history.Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if list.Total != 1 {
		t.Fatalf("Total = %d, want 1", list.Total)
	}
	run := list.Runs[0]
	if run.Source != history.SourceAPI || run.RowCount != 2 || run.FileName != "unl_export_20261019_093000.csv" {
		t.Errorf("run = %+v", run)
	}
	if len(run.Dropped) != 1 || run.Dropped[0] != "D3" {
		t.Errorf("Dropped = %v, want [D3]", run.Dropped)
	}
}

// =============================================================================
// Export history
// =============================================================================

func TestHandleExports_NoHistory(t *testing.T) {
	env := testServer(t)
	for _, path := range []string{"/api/v1/exports", "/api/v1/exports/exp-12345678"} {
		if rec := env.do(t, path, ""); rec.Code != http.StatusServiceUnavailable {
			t.Errorf("GET %s status = %d, want 503", path, rec.Code)
		}
	}
}

func TestHandleListAndGetExports(t *testing.T) {
	repo := newHistory(t)
	env := testServer(t, withHistory(repo))
	env.do(t, "/api/v1/export.csv", "BBFF-caller")
	env.do(t, "/api/v1/export.csv?name=D1", "BBFF-caller")

	rec := env.do(t, "/api/v1/exports?limit=1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d: %s", rec.Code, rec.Body.String())
	}
	var list history.ListResult
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decoding list: %v", err)
	}
	if list.Total != 2 || len(list.Runs) != 1 || list.Limit != 1 {
		t.Fatalf("list = %+v, want total 2 with one run", list)
	}

	rec = env.do(t, "/api/v1/exports/"+list.Runs[0].ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	var run history.Run
	if err := json.Unmarshal(rec.Body.Bytes(), &run); err != nil {
		t.Fatalf("decoding run: %v", err)
	}
	if len(run.Rows) != run.RowCount {
		t.Errorf("rows = %d, row_count = %d", len(run.Rows), run.RowCount)
	}

	if rec := env.do(t, "/api/v1/exports/exp-missing0", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown id status = %d, want 404", rec.Code)
	}
}

func TestHandleListExports_BadParams(t *testing.T) {
	env := testServer(t, withHistory(newHistory(t)))
	for _, q := range []string{"limit=abc", "offset=-1"} {
		if rec := env.do(t, "/api/v1/exports?"+q, ""); rec.Code != http.StatusBadRequest {
			t.Errorf("%s status = %d, want 400", q, rec.Code)
		}
	}
}

// =============================================================================
// Middleware
// =============================================================================

func TestCORS(t *testing.T) {
	env := testServer(t)
	env.srv.cfg.CORS.AllowedOrigins = []string{"https://dash.example.test"}

	tests := []struct {
		origin string
		want   string
	}{
		{"https://dash.example.test", "https://dash.example.test"},
		{"https://evil.example.test", ""},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/export.csv", nil)
		req.Header.Set("Origin", tt.origin)
		rec := httptest.NewRecorder()
		env.srv.buildRouter().ServeHTTP(rec, req)

		if rec.Code != http.StatusNoContent {
			t.Errorf("preflight status = %d, want 204", rec.Code)
		}
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.want {
			t.Errorf("origin %s: Allow-Origin = %q, want %q", tt.origin, got, tt.want)
		}
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	env := testServer(t)
	h := env.srv.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("handler exploded")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

// =============================================================================
// Event stream
// =============================================================================

func TestEvents_ExportCompleted(t *testing.T) {
	env := testServer(t)
	ts := httptest.NewServer(env.srv.buildRouter())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for env.srv.Hub().ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/v1/export.csv", nil)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	req.Header.Set(ubidots.AuthHeader, "BBFF-caller")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("export request error = %v", err)
	}
	resp.Body.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck // Test deadline
	var msg struct {
		Type      string      `json:"type"`
		EventType string      `json:"event_type"`
		Payload   exportEvent `json:"payload"`
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if msg.Type != WSTypeEvent || msg.EventType != EventExportCompleted {
		t.Errorf("message = %+v", msg)
	}
	if msg.Payload.Rows != 2 || msg.Payload.FileName != "unl_export_20261019_093000.csv" {
		t.Errorf("payload = %+v", msg.Payload)
	}
}

func TestEvents_PingOnlyReply(t *testing.T) {
	env := testServer(t)
	ts := httptest.NewServer(env.srv.buildRouter())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/api/v1/events", nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	// Non-ping messages get no reply, so the first reply is the pong.
	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}
	if err := conn.WriteJSON(WSMessage{Type: "subscribe", ID: "41"}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	if err := conn.WriteJSON(WSMessage{Type: WSTypePing, ID: "42"}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck // Test deadline
	var reply WSMessage
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if reply.Type != WSTypePong || reply.ID != "42" {
		t.Errorf("reply = %+v, want pong 42", reply)
	}
}

func TestHub_BroadcastWithoutClients(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, nil)
	hub.Broadcast(EventExportCompleted, exportEvent{FileName: "x.csv"})
	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d, want 0", hub.ClientCount())
	}
}

func TestHub_RunClosesClients(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, nil)
	client := &WSClient{hub: hub, send: make(chan []byte, 1)}
	hub.Register(client)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d after Run returned, want 0", hub.ClientCount())
	}
	if _, ok := <-client.send; ok {
		t.Error("send channel still open")
	}
	// A late broadcast must not panic on the closed channel.
	client.trySend([]byte("late"))
}
