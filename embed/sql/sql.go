package sql

import _ "embed"

// Schema creates the backend tables and the snapshot view.
//
//go:embed schema.sql
var Schema string
