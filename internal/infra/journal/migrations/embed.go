package migrations

import "embed"

// FS contains the outcome journal schema migrations.
//
//go:embed *.sql
var FS embed.FS
