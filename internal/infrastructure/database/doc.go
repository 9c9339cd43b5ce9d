// Package database provides the SQLite connection that backs the audit
// trail.
//
// The record file stays the source of truth for approved devices; SQLite
// only holds the append-only history of administrative mutations. This
// package manages:
//   - Connection setup with WAL mode and a busy timeout
//   - Schema migrations applied from an fs.FS (normally the embedded
//     migrations package)
//   - Lifecycle and health checks
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
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with an
// optional matching .down.sql.
package database
