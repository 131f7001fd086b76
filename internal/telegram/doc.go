// Package telegram connects the bot to the Telegram Bot API.
//
// Transport implements chat.Transport on top of telegram-bot-api: text
// with inline or reply keyboards, HTML parse mode, photos, in-place edits
// and file downloads. Run long-polls for updates, acknowledges callback
// queries, converts each update into a chat.Event and hands it to a
// chat.Handler (normally the per-chat dispatcher).
package telegram
