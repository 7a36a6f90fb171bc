package migrations

import "embed"

// FS holds the SQL migrations read by golang-migrate's iofs source.
//
//go:embed *.sql
var FS embed.FS

// Version is the schema version the binary expects.
const Version = 1
