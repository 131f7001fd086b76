// Package api implements the read-only HTTP API and WebSocket feed.
//
// Routes live under /api/v1: the current printer state, recent state
// transitions, the audit log, and a WebSocket feed that sends the current
// state on connect and every transition after it. Clients on the feed may
// send ping, state, mute and unmute frames.
//
// # Security
//
// Tokens are issued out of band with `printwatch token --user ID` and carry
// only the user id. Every request re-checks the user's access level against
// the registry, so removing a user from the access configuration revokes
// their tokens on the next restart. WebSocket clients pass the token as the
// token query parameter.
//
// The server is optional and disabled unless api.enabled is set.
package api
