// Package migrations embeds the goose SQL migration files applied at
// server startup.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
