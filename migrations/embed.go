// Package migrations embeds the SQL schema of the catspaw database.
package migrations

import (
	"embed"

	"github.com/Dlizzz/catspaw/internal/infrastructure/database"
)

//go:embed *.sql
var files embed.FS

// Source returns the embedded migrations for database.DB.Migrate.
func Source() database.Source {
	return database.Source{FS: files, Dir: "."}
}
