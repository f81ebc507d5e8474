// Package migrations embeds the goose SQL migrations of the schema
package migrations

import "embed"

// Migrations holds the SQL files applied by goose, in version order
//
//go:embed *.sql
var Migrations embed.FS
