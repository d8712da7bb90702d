package appfs

import "embed"

// FS holds the SQL migrations of the app database.
//
//go:embed migrations/*.sql
var FS embed.FS
