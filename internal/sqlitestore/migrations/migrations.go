// Package migrations embeds the SQLite schema files.
package migrations

import "embed"

//go:embed *.up.sql
var FS embed.FS
