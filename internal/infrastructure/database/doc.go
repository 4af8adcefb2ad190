// Package database provides the SQLite connection used for the frame's local
// state (currently the display ledger).
//
// Open applies WAL mode and a busy timeout from config; Migrate applies
// embedded YYYYMMDD_HHMMSS_name.up.sql files in order and records them in
// schema_migrations.
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
