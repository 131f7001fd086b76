// Package access holds the authorisation registry that gates every
// privileged bot operation.
//
// Privilege levels are an ordered list of names taken from configuration,
// lowest first (for example monitor, control). A user configured at level
// index i is a member of every level 0..i, so holding a higher level implies
// all lower ones. Users flagged notify form the notification roster used by
// the state watcher.
//
// The registry is built once at startup and never mutated. Reloading means
// building a new Registry; there is no partial update.
package access
