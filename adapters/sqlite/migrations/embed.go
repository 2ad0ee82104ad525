// Package migrations embeds the SQLite schema of the esgo store.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
