// Package migrations goose миграции схемы postgres, встроенные в бинарник
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
