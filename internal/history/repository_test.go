package history

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/awqp/ubidots-export/internal/infrastructure/config"
	"github.com/awqp/ubidots-export/internal/infrastructure/database"
	"github.com/awqp/ubidots-export/migrations"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "history.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewSQLiteRepository(db.DB)
}

var exportColumns = []string{"name", "rh", "t", "lat", "lng"}

func TestCreateAndGet(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	run := NewRun("pile-temp-and-cercospora-monitor", SourceCLI, "unl_export_20261019_090000.csv",
		exportColumns,
		[][]string{
			{"D1", "v2", "v1", "40.1", "-96.1"},
			{"D2", "v4", "v3", "", ""},
		},
	)
	run.Dropped = []string{"D3"}

	if err := repo.Create(ctx, run); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if len(run.ID) != len("exp-")+8 {
		t.Errorf("ID = %q, want exp- prefix and 8 characters", run.ID)
	}
	if run.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}

	got, err := repo.Get(ctx, run.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.RowCount != 2 || got.Source != SourceCLI || got.FileName != run.FileName {
		t.Errorf("Get() = %+v", got)
	}
	if !reflect.DeepEqual(got.Columns, exportColumns) {
		t.Errorf("Columns = %v, want %v", got.Columns, exportColumns)
	}
	if !reflect.DeepEqual(got.Rows, run.Rows) {
		t.Errorf("Rows = %v, want %v", got.Rows, run.Rows)
	}
	if !reflect.DeepEqual(got.Dropped, []string{"D3"}) {
		t.Errorf("Dropped = %v, want [D3]", got.Dropped)
	}
}

func TestGet_NotFound(t *testing.T) {
	repo := newTestRepo(t)
	if _, err := repo.Get(context.Background(), "exp-missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestList(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

	for i, deviceType := range []string{"monitor", "gateway", "monitor"} {
		run := NewRun(deviceType, SourceAPI, "f.csv", exportColumns, [][]string{{"D", "", "", "", ""}})
		run.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		if err := repo.Create(ctx, run); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	all, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if all.Total != 3 || len(all.Runs) != 3 {
		t.Fatalf("List() total = %d, runs = %d; want 3, 3", all.Total, len(all.Runs))
	}
	if all.Limit != defaultListLimit {
		t.Errorf("Limit = %d, want %d", all.Limit, defaultListLimit)
	}
	if !all.Runs[0].CreatedAt.After(all.Runs[1].CreatedAt) {
		t.Error("List() is not newest first")
	}
	if all.Runs[0].Rows != nil {
		t.Error("List() should not load rows")
	}

	monitors, err := repo.List(ctx, Filter{DeviceType: "monitor", Limit: 1})
	if err != nil {
		t.Fatalf("List(monitor) error = %v", err)
	}
	if monitors.Total != 2 || len(monitors.Runs) != 1 {
		t.Errorf("List(monitor) total = %d, runs = %d; want 2, 1", monitors.Total, len(monitors.Runs))
	}

	clamped, err := repo.List(ctx, Filter{Limit: 1000, Offset: -5})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if clamped.Limit != maxListLimit || clamped.Offset != 0 {
		t.Errorf("clamped limit/offset = %d/%d, want %d/0", clamped.Limit, clamped.Offset, maxListLimit)
	}
}

func TestList_Empty(t *testing.T) {
	repo := newTestRepo(t)
	res, err := repo.List(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Runs == nil || len(res.Runs) != 0 || res.Total != 0 {
		t.Errorf("List() = %+v, want empty non-nil runs", res)
	}
}
