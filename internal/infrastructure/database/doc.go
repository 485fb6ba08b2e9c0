// Package database opens the SQLite file that holds export history and
// applies its schema migrations.
//
// The connection uses a single writer, a busy timeout and, when enabled,
// WAL journaling so the session API can read history while an export is
// being recorded.
//
// Migrations are plain SQL files named YYYYMMDD_HHMMSS_description.up.sql
// (with an optional matching .down.sql). They are passed to Migrate as an
// fs.FS, normally the embedded set from the top-level migrations package.
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
