// Package chat defines the boundary between the bot logic and a chat transport.
//
// Inbound updates are normalised into Event values; outbound operations go
// through the Transport interface. Nothing here depends on a particular
// messaging service, which keeps the conversation engine and command handlers
// testable with an in-memory transport.
package chat
