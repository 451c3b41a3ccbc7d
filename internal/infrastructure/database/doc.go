// Package database provides SQLite connectivity for Gray Logic Video.
//
// The database holds the history of camera stream sessions. This package
// manages:
//   - The connection, with WAL mode so API reads never wait on the recorder
//   - Versioned up/down schema migrations read from an fs.FS
//
// Security Considerations:
//   - All queries use parameterised statements
//   - Database file permissions are set to 0600 (owner read/write only)
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migrations are additive: new columns are NULLABLE or carry a DEFAULT, and
// each .up.sql file has a matching .down.sql.
package database
