// Package migrations embeds the SQLite schema of the record and subject stores.
package migrations

import "embed"

// FS contains embedded SQLite migrations.
//
//go:embed *.sql
var FS embed.FS
