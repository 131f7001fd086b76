// Package history persists the printer state transitions seen by the watcher.
//
// Each row holds the new printer_status and printjob_state alongside the
// values they replaced, so the HTTP API can show what changed and when
// without the bot having been online to notify anyone.
package history
