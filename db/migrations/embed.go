// Package dbmigrations exposes the embedded SQL migrations for the
// historical recorder's Postgres schema.
package dbmigrations

import "embed"

// Files contains the embedded SQL migrations bundled into the recorder binary.
//
//go:embed *.sql
var Files embed.FS
