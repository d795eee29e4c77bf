// Package migrations embeds the SQL migration files for imsgd.db.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
