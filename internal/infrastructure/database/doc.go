// Package database provides SQLite connectivity for the hub's exchange journal.
//
// This package manages:
//   - Opening the database file with WAL mode and a busy timeout
//   - Schema migrations read from an fs.FS (see the migrations package)
//   - Transaction helper and health check
//
// The database is optional. It is only opened when database.enabled is
// set, and the relay runs the same with or without it.
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migrations are additive. Each .up.sql should ship with a .down.sql.
package database
