// Package migrations embeds the history database schema into the binary.
package migrations

import "embed"

// FS holds every *.sql file of this directory at its root. Pass it to
// database.DB.Migrate.
//
//go:embed *.sql
var FS embed.FS
