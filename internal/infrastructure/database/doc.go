// Package database provides SQLite storage for the Fastcon bridge.
//
// It holds the light registry (paired lights and their last transmitted
// state) and the command journal. The package manages:
//   - The connection, with WAL mode for concurrent reads during writes
//   - Schema migrations embedded from the migrations package
//   - Health checks for the /health endpoint
//
// Security Considerations:
//   - All queries use parameterised statements
//   - Database file permissions are set to 0600 (owner read/write only)
//   - The mesh key is configuration, never stored here
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migration Strategy:
//
// Migrations are additive-only:
//   - New columns must be NULLABLE or have DEFAULT values
//   - Never DROP or RENAME columns
//   - Each migration file has both .up.sql and .down.sql, named
//     YYYYMMDD_HHMMSS_description.{up,down}.sql
package database
