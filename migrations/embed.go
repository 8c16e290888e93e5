// Package migrations embeds the goose SQL migrations for the server and the local cache.
package migrations

import "embed"

// Postgres holds the server schema (accounts, profiles, purchases, login limiter).
//
//go:embed postgres/*.sql
var Postgres embed.FS

// SQLite holds the client-side durable cache schema.
//
//go:embed sqlite/*.sql
var SQLite embed.FS
