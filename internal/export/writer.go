package export

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/awqp/ubidots-export/internal/infrastructure/config"
	"github.com/awqp/ubidots-export/internal/reshape"
)

const (
	// timestampLayout is YYYYMMDD_HHMMSS.
	timestampLayout = "20060102_150405"

	dirPermissions = 0o755
	// filePermissions keeps exports readable by whoever collects them.
	filePermissions = 0o644
)

// FileName returns the export file name for prefix at t.
func FileName(prefix string, t time.Time) string {
	return fmt.Sprintf("%s_%s.csv", prefix, t.Format(timestampLayout))
}

// Writer writes export tables into a directory.
type Writer struct {
	dir    string
	prefix string
	now    func() time.Time
}

// NewWriter creates a Writer from the export config section.
func NewWriter(cfg config.ExportConfig) *Writer {
	return &Writer{
		dir:    cfg.Dir,
		prefix: cfg.Prefix,
		now:    time.Now,
	}
}

// File describes a written export.
type File struct {
	Name    string
	Path    string
	Rows    int
	Written time.Time
}

// Write renders table into a new file and returns where it went.
func (w *Writer) Write(table *reshape.WideTable) (*File, error) {
	written := w.now()
	name := FileName(w.prefix, written)

	if err := os.MkdirAll(w.dir, dirPermissions); err != nil {
		return nil, fmt.Errorf("creating export directory: %w", err)
	}

	tmp, err := os.CreateTemp(w.dir, "."+name+".*")
	if err != nil {
		return nil, fmt.Errorf("creating export file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) //nolint:errcheck // no-op after a successful rename

	if err := table.WriteCSV(tmp); err != nil {
		tmp.Close()
		return nil, err
	}
	// CreateTemp makes the file owner-only.
	if err := tmp.Chmod(filePermissions); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("setting export file mode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("closing export file: %w", err)
	}

	path := filepath.Join(w.dir, name)
	if err := os.Rename(tmpPath, path); err != nil {
		return nil, fmt.Errorf("publishing export file: %w", err)
	}

	return &File{
		Name:    name,
		Path:    path,
		Rows:    table.Len(),
		Written: written,
	}, nil
}
