// Package conversation implements the printer settings menu as a per-chat
// state machine.
//
// A session starts when a control-level user sends the settings entry label
// and lives until the user sends something the current state does not
// recognise, or until it has been idle longer than the configured TTL.
//
//	Settings ──► Leds
//	    │
//	    └──────► PrintJob ──► PausingConfirm ──┐
//	                │    ├──► ResumingConfirm ─┤
//	                │    └──► AwaitingModelFile┤
//	                ◄──────────────────────────┘
//
// "Back To Settings" is accepted from every state. Transitions are looked
// up in a table keyed by state and input, and every transition re-checks
// the user's access level first.
//
// Menus are edited in place. An edit whose text matches what the message
// already shows is skipped.
package conversation
