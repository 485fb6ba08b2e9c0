package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Run sources.
const (
	SourceCLI = "cli"
	SourceAPI = "api"
)

const (
	defaultListLimit = 20
	maxListLimit     = 200
)

// ErrNotFound is returned by Get for an unknown run id.
var ErrNotFound = errors.New("history: export run not found")

// Run is one written export.
type Run struct {
	ID         string    `json:"id"`
	DeviceType string    `json:"device_type"`
	FileName   string    `json:"file_name"`
	Source     string    `json:"source"`
	RowCount   int       `json:"row_count"`
	Columns    []string  `json:"columns"`
	Dropped    []string  `json:"dropped,omitempty"`
	CreatedAt  time.Time `json:"created_at"`

	// Rows is populated by Get only.
	Rows [][]string `json:"rows,omitempty"`
}

// NewRun describes an export of rows under columns. RowCount follows rows.
func NewRun(deviceType, source, fileName string, columns []string, rows [][]string) *Run {
	return &Run{
		DeviceType: deviceType,
		FileName:   fileName,
		Source:     source,
		RowCount:   len(rows),
		Columns:    slices.Clone(columns),
		Rows:       rows,
	}
}

// Filter controls which runs List returns.
type Filter struct {
	DeviceType string // optional
	Limit      int    // default 20, max 200
	Offset     int
}

// ListResult is a page of runs, newest first.
type ListResult struct {
	Runs   []Run `json:"runs"`
	Total  int   `json:"total"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}

// Repository stores export runs.
type Repository interface {
	Create(ctx context.Context, run *Run) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
	Get(ctx context.Context, id string) (*Run, error)
}

// SQLiteRepository stores runs in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository over an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts the run and its rows in one transaction. ID and CreatedAt
// are generated when empty.
func (r *SQLiteRepository) Create(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = "exp-" + uuid.NewString()[:8]
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	run.RowCount = len(run.Rows)

	columnsJSON, err := json.Marshal(run.Columns)
	if err != nil {
		return fmt.Errorf("marshalling columns: %w", err)
	}
	var droppedJSON *string
	if len(run.Dropped) > 0 {
		b, err := json.Marshal(run.Dropped)
		if err != nil {
			return fmt.Errorf("marshalling dropped devices: %w", err)
		}
		s := string(b)
		droppedJSON = &s
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO export_runs (id, device_type, file_name, source, row_count, columns, dropped, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.DeviceType, run.FileName, run.Source, run.RowCount,
		string(columnsJSON), droppedJSON,
		run.CreatedAt.UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("inserting export run: %w", err)
	}

	nameIdx := slices.Index(run.Columns, "name")
	for i, row := range run.Rows {
		cells, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("marshalling row %d: %w", i, err)
		}
		name := ""
		if nameIdx >= 0 && nameIdx < len(row) {
			name = row[nameIdx]
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO export_rows (run_id, position, device_name, cells) VALUES (?, ?, ?, ?)`,
			run.ID, i, name, string(cells),
		); err != nil {
			return fmt.Errorf("inserting export row %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing export run: %w", err)
	}
	return nil
}

// List returns runs matching the filter, newest first, without their rows.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	where := ""
	var args []any
	if filter.DeviceType != "" {
		where = "WHERE device_type = ?"
		args = append(args, filter.DeviceType)
	}

	var total int
	if err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM export_runs "+where, args...,
	).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting export runs: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, device_type, file_name, source, row_count, columns, dropped, created_at
		 FROM export_runs `+where+` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`,
		append(args, filter.Limit, filter.Offset)...,
	)
	if err != nil {
		return nil, fmt.Errorf("querying export runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating export runs: %w", err)
	}

	return &ListResult{
		Runs:   runs,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}, nil
}

// Get returns one run with its rows in export order.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Run, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, device_type, file_name, source, row_count, columns, dropped, created_at
		 FROM export_runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT cells FROM export_rows WHERE run_id = ? ORDER BY position", id)
	if err != nil {
		return nil, fmt.Errorf("querying export rows: %w", err)
	}
	defer rows.Close()

	run.Rows = [][]string{}
	for rows.Next() {
		var cellsJSON string
		if err := rows.Scan(&cellsJSON); err != nil {
			return nil, fmt.Errorf("scanning export row: %w", err)
		}
		var cells []string
		if err := json.Unmarshal([]byte(cellsJSON), &cells); err != nil {
			return nil, fmt.Errorf("decoding export row: %w", err)
		}
		run.Rows = append(run.Rows, cells)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating export rows: %w", err)
	}
	return run, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var (
		run         Run
		columnsJSON string
		droppedJSON sql.NullString
		createdAt   string
	)
	if err := s.Scan(&run.ID, &run.DeviceType, &run.FileName, &run.Source,
		&run.RowCount, &columnsJSON, &droppedJSON, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning export run: %w", err)
	}

	if err := json.Unmarshal([]byte(columnsJSON), &run.Columns); err != nil {
		return nil, fmt.Errorf("decoding columns of %s: %w", run.ID, err)
	}
	if droppedJSON.Valid && droppedJSON.String != "" {
		if err := json.Unmarshal([]byte(droppedJSON.String), &run.Dropped); err != nil {
			return nil, fmt.Errorf("decoding dropped devices of %s: %w", run.ID, err)
		}
	}

	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing export run timestamp %q: %w", createdAt, err)
	}
	run.CreatedAt = t
	return &run, nil
}
