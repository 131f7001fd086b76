// Package watcher polls the printer on a fixed interval and reports state
// transitions.
//
// The first poll runs as soon as the watcher starts and only records a
// baseline. Every later poll whose printer_status or printjob_state differs
// from the last successful snapshot sends one "Status Changed" message to
// each user on the notification roster. A failed poll is logged and leaves
// the snapshot untouched; the next tick simply tries again.
//
// Observers see every successful snapshot (OnPoll) and every transition
// (OnChange). They run after notifications have been sent, and their errors
// are logged only.
//
// Thread Safety:
//   - Poll may be called concurrently with the background loop; polls are
//     serialised so each transition is detected exactly once.
package watcher
