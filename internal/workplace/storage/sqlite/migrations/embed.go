package migrations

import "embed"

// FS contains embedded SQLite migrations for workplace storage.
//
//go:embed *.sql
var FS embed.FS
