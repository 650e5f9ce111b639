// Package database provides the SQLite store behind the command history.
//
// The database is a single local file opened with WAL mode and a busy
// timeout. Schema changes are plain SQL files applied in version order
// and tracked in a schema_migrations table.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.Source()); err != nil {
//	    return err
//	}
package database
