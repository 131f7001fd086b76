// Package bot handles main menu commands and routes chat events.
//
// The Bot answers the slash commands and reply keyboard buttons of the main
// menu and hands everything else to the settings conversation. The
// Dispatcher feeds events to a handler with one worker per chat, so a
// chat's events are handled strictly in arrival order while different chats
// run concurrently.
package bot
