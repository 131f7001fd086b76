package chat

import (
	"context"
	"io"
)

// Document is a file attached to an inbound message.
type Document struct {
	FileID   string
	FileName string
	Size     int64
}

// Event is one inbound update from a chat.
//
// Exactly one of Text, Callback, or Document is normally set. Command holds
// the bare command name ("start", "myid") when Text is a slash command.
type Event struct {
	UserID int64
	ChatID int64

	Text    string
	Command string

	// Callback is the token of a pressed inline button. CallbackID is the
	// transport's id for acknowledging it.
	Callback   string
	CallbackID string

	// MessageID and MessageText identify the message an inline button belongs
	// to, so it can be edited in place.
	MessageID   int
	MessageText string

	Document *Document
}

// IsCallback reports whether the event is an inline button press.
func (e Event) IsCallback() bool {
	return e.Callback != ""
}

// IsCommand reports whether the event is a slash command.
func (e Event) IsCommand() bool {
	return e.Command != ""
}

// Message is an outbound text message.
//
// Inline is an inline keyboard (each button's label is also its callback
// token). Reply replaces the chat's reply keyboard. At most one should be set.
type Message struct {
	Text   string
	HTML   bool
	Inline [][]string
	Reply  [][]string
}

// Photo is an outbound image.
type Photo struct {
	Name    string
	Data    []byte
	Caption string
}

// Transport is the outbound half of a chat service.
type Transport interface {
	// SendText sends msg to chatID and returns the new message's id.
	SendText(ctx context.Context, chatID int64, msg Message) (int, error)

	// SendPhoto sends an image to chatID.
	SendPhoto(ctx context.Context, chatID int64, photo Photo) error

	// EditText replaces the text and inline keyboard of an existing message.
	// A nil msg.Inline leaves the message without a keyboard.
	EditText(ctx context.Context, chatID int64, messageID int, msg Message) error

	// Download streams the attached file to w.
	Download(ctx context.Context, fileID string, w io.Writer) error
}

// Handler processes inbound events.
type Handler interface {
	HandleEvent(ctx context.Context, ev Event)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, ev Event)

// HandleEvent calls f(ctx, ev).
func (f HandlerFunc) HandleEvent(ctx context.Context, ev Event) {
	f(ctx, ev)
}
