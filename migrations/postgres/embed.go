// Package migrations embebe el schema SQL de Postgres.
package migrations

import "embed"

// FS contiene los archivos de schema, aplicados en orden lexicográfico.
//
//go:embed *.sql
var FS embed.FS
