package migrations

import "embed"

// FS contains the embedded SQLite schema for confirmed dice transactions.
//
//go:embed *.sql
var FS embed.FS
