package telegram

import (
	"context"
	"errors"
	"net/url"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/nerrad567/printwatch/internal/chat"
)

// Run long-polls for updates and passes each one to handler until ctx is
// cancelled. Callback queries are acknowledged before dispatch so the
// client stops its progress indicator.
func (t *Transport) Run(ctx context.Context, handler chat.Handler) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = t.pollTimeout
	updates := t.api.GetUpdatesChan(u)
	defer t.api.StopReceivingUpdates()

	t.log().Info("receiving chat updates", "poll_timeout", t.pollTimeout)

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			ev, ok := toEvent(update)
			if !ok {
				t.log().Debug("ignoring update", "update_id", update.UpdateID)
				continue
			}
			if ev.IsCallback() {
				t.answerCallback(ev.CallbackID)
			}
			handler.HandleEvent(ctx, ev)
		}
	}
}

func (t *Transport) answerCallback(id string) {
	if _, err := t.api.Request(tgbotapi.NewCallback(id, "")); err != nil {
		t.log().Warn("acknowledging callback failed", "error", err)
	}
}

// toEvent converts an update to a chat.Event. Updates without a sender
// (channel posts, edits, polls) are skipped.
func toEvent(update tgbotapi.Update) (chat.Event, bool) {
	if cb := update.CallbackQuery; cb != nil {
		if cb.From == nil || cb.Message == nil || cb.Message.Chat == nil {
			return chat.Event{}, false
		}
		return chat.Event{
			UserID:      cb.From.ID,
			ChatID:      cb.Message.Chat.ID,
			Callback:    cb.Data,
			CallbackID:  cb.ID,
			MessageID:   cb.Message.MessageID,
			MessageText: cb.Message.Text,
		}, cb.Data != ""
	}

	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return chat.Event{}, false
	}

	ev := chat.Event{
		UserID:    msg.From.ID,
		ChatID:    msg.Chat.ID,
		Text:      msg.Text,
		MessageID: msg.MessageID,
	}
	if msg.IsCommand() {
		ev.Command = msg.Command()
	}
	if doc := msg.Document; doc != nil {
		ev.Document = &chat.Document{
			FileID:   doc.FileID,
			FileName: doc.FileName,
			Size:     int64(doc.FileSize),
		}
	}
	if ev.Text == "" && ev.Document == nil {
		return chat.Event{}, false
	}
	return ev, true
}

// unwrapURLError drops the request URL from err.
func unwrapURLError(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return uerr.Err
	}
	return err
}
