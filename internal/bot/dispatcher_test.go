package bot

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/printwatch/internal/chat"
)

type orderHandler struct {
	mu     sync.Mutex
	byChat map[int64][]string
	gate   chan struct{}
}

func (h *orderHandler) HandleEvent(_ context.Context, ev chat.Event) {
	if h.gate != nil && ev.ChatID == 1 {
		<-h.gate
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.byChat[ev.ChatID] = append(h.byChat[ev.ChatID], ev.Text)
}

func (h *orderHandler) seen(chatID int64) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.byChat[chatID]...)
}

func TestDispatcher_PerChatOrder(t *testing.T) {
	h := &orderHandler{byChat: map[int64][]string{}}
	d := NewDispatcher(h)
	ctx := context.Background()

	want := []string{"a", "b", "c", "d", "e"}
	for _, s := range want {
		d.Dispatch(ctx, chat.Event{ChatID: 7, Text: s})
	}
	d.Close()

	got := h.seen(7)
	if len(got) != len(want) {
		t.Fatalf("handled %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("handled %v, want %v", got, want)
		}
	}
}

func TestDispatcher_ChatsAreIndependent(t *testing.T) {
	h := &orderHandler{byChat: map[int64][]string{}, gate: make(chan struct{})}
	d := NewDispatcher(h)
	ctx := context.Background()

	d.Dispatch(ctx, chat.Event{ChatID: 1, Text: "blocked"})
	d.Dispatch(ctx, chat.Event{ChatID: 2, Text: "free"})

	deadline := time.Now().Add(2 * time.Second)
	for len(h.seen(2)) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if len(h.seen(2)) != 1 {
		t.Error("chat 2 was held up by chat 1")
	}
	if d.Workers() != 2 {
		t.Errorf("Workers() = %d, want 2", d.Workers())
	}

	close(h.gate)
	d.Close()
	if len(h.seen(1)) != 1 {
		t.Error("chat 1 event was not handled before Close returned")
	}

	d.Dispatch(ctx, chat.Event{ChatID: 3, Text: "late"})
	if len(h.seen(3)) != 0 {
		t.Error("event dispatched after Close was handled")
	}
}

func TestDispatcher_IdleWorkerRetires(t *testing.T) {
	h := &orderHandler{byChat: map[int64][]string{}}
	d := NewDispatcher(h)
	d.idle = 10 * time.Millisecond
	ctx := context.Background()

	d.Dispatch(ctx, chat.Event{ChatID: 5, Text: "one"})
	deadline := time.Now().Add(2 * time.Second)
	for d.Workers() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if d.Workers() != 0 {
		t.Fatal("idle worker did not retire")
	}

	d.Dispatch(ctx, chat.Event{ChatID: 5, Text: "two"})
	d.Close()
	if got := h.seen(5); len(got) != 2 {
		t.Errorf("handled %v, want both events", got)
	}
}

type panicHandler struct {
	mu    sync.Mutex
	calls int
}

func (p *panicHandler) HandleEvent(context.Context, chat.Event) {
	p.mu.Lock()
	p.calls++
	n := p.calls
	p.mu.Unlock()
	if n == 1 {
		panic("boom")
	}
}

func TestDispatcher_RecoversFromPanic(t *testing.T) {
	h := &panicHandler{}
	d := NewDispatcher(h)
	ctx := context.Background()

	d.Dispatch(ctx, chat.Event{ChatID: 1})
	d.Dispatch(ctx, chat.Event{ChatID: 1})
	d.Close()

	if h.calls != 2 {
		t.Errorf("handler calls = %d, want 2", h.calls)
	}
}
