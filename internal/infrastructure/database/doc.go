// Package database provides the SQLite store for PrintWatch.
//
// The store holds the state-change history and the audit log of privileged
// chat actions. Nothing the bot needs to operate lives here: the database can
// be deleted at any time and is recreated empty on the next start.
//
// Migrations are plain SQL files named YYYYMMDD_HHMMSS_description.up.sql
// (and .down.sql). The migrations package registers them at init time:
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
// Security Considerations:
//   - All queries use parameterised statements
//   - The database file is created with mode 0600
package database
