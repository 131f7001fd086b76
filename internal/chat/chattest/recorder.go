// Package chattest provides an in-memory chat.Transport for tests.
package chattest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/nerrad567/printwatch/internal/chat"
)

// Kind names a recorded outbound operation.
type Kind string

const (
	KindSend  Kind = "send"
	KindPhoto Kind = "photo"
	KindEdit  Kind = "edit"
)

// Call is one recorded outbound operation.
type Call struct {
	Kind      Kind
	ChatID    int64
	MessageID int
	Message   chat.Message
	Photo     chat.Photo
}

// Recorder records outbound calls and serves downloads from Files.
//
// Thread Safety:
//   - Safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	calls  []Call
	nextID int

	// Files maps file ids to download content.
	Files map[string][]byte

	// FailSend makes every SendText and SendPhoto fail.
	FailSend bool
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{Files: make(map[string][]byte), nextID: 100}
}

// SendText implements chat.Transport.
func (r *Recorder) SendText(_ context.Context, chatID int64, msg chat.Message) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailSend {
		return 0, errors.New("chattest: send failed")
	}
	r.nextID++
	r.calls = append(r.calls, Call{Kind: KindSend, ChatID: chatID, MessageID: r.nextID, Message: msg})
	return r.nextID, nil
}

// SendPhoto implements chat.Transport.
func (r *Recorder) SendPhoto(_ context.Context, chatID int64, photo chat.Photo) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailSend {
		return errors.New("chattest: send failed")
	}
	r.calls = append(r.calls, Call{Kind: KindPhoto, ChatID: chatID, Photo: photo})
	return nil
}

// EditText implements chat.Transport.
func (r *Recorder) EditText(_ context.Context, chatID int64, messageID int, msg chat.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Call{Kind: KindEdit, ChatID: chatID, MessageID: messageID, Message: msg})
	return nil
}

// Download implements chat.Transport.
func (r *Recorder) Download(_ context.Context, fileID string, w io.Writer) error {
	r.mu.Lock()
	data, ok := r.Files[fileID]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("chattest: no file %q", fileID)
	}
	_, err := w.Write(data)
	return err
}

// Calls returns a copy of every recorded call.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// Count returns how many calls of kind were recorded.
func (r *Recorder) Count(kind Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c.Kind == kind {
			n++
		}
	}
	return n
}

// Last returns the most recent call, if any.
func (r *Recorder) Last() (Call, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) == 0 {
		return Call{}, false
	}
	return r.calls[len(r.calls)-1], true
}

// Reset forgets recorded calls.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}
