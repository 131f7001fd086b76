package bot

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/printwatch/internal/chat"
)

const (
	defaultQueueSize  = 32
	defaultWorkerIdle = time.Minute
)

// Dispatcher runs a handler with one worker goroutine per chat.
//
// Thread Safety:
//   - Dispatch is safe for concurrent use. Events for one chat reach the
//     handler in the order Dispatch was called.
type Dispatcher struct {
	handler   chat.Handler
	queueSize int
	idle      time.Duration

	mu      sync.Mutex
	workers map[int64]*worker
	closed  bool
	wg      sync.WaitGroup

	logger Logger
}

type worker struct {
	events chan chat.Event
}

// NewDispatcher creates a Dispatcher feeding handler.
func NewDispatcher(handler chat.Handler) *Dispatcher {
	return &Dispatcher{
		handler:   handler,
		queueSize: defaultQueueSize,
		idle:      defaultWorkerIdle,
		workers:   make(map[int64]*worker),
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger.
func (d *Dispatcher) SetLogger(logger Logger) {
	if logger != nil {
		d.logger = logger
	}
}

// Dispatch queues ev for its chat's worker, starting one if needed.
// Events for a chat whose queue is full are dropped.
func (d *Dispatcher) Dispatch(ctx context.Context, ev chat.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}

	w := d.workers[ev.ChatID]
	if w == nil {
		w = &worker{events: make(chan chat.Event, d.queueSize)}
		d.workers[ev.ChatID] = w
		d.wg.Add(1)
		go d.run(ctx, ev.ChatID, w)
	}

	select {
	case w.events <- ev:
	default:
		d.logger.Warn("chat queue full, dropping event", "chat_id", ev.ChatID)
	}
}

// Close stops accepting events and waits for queued ones to be handled.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		for _, w := range d.workers {
			close(w.events)
		}
	}
	d.mu.Unlock()
	d.wg.Wait()
}

// Workers returns the number of live chat workers.
func (d *Dispatcher) Workers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.workers)
}

func (d *Dispatcher) run(ctx context.Context, chatID int64, w *worker) {
	defer d.wg.Done()

	timer := time.NewTimer(d.idle)
	defer timer.Stop()

	for {
		select {
		case ev, ok := <-w.events:
			if !ok {
				return
			}
			d.handle(ctx, ev)
			timer.Reset(d.idle)
		case <-timer.C:
			// Retire only if nothing arrived while the timer fired; Dispatch
			// enqueues under the same lock.
			d.mu.Lock()
			if len(w.events) == 0 && !d.closed {
				delete(d.workers, chatID)
				d.mu.Unlock()
				return
			}
			d.mu.Unlock()
			timer.Reset(d.idle)
		}
	}
}

// handle runs the handler, keeping a panic in one event from taking down
// the chat's worker.
func (d *Dispatcher) handle(ctx context.Context, ev chat.Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("chat handler panicked", "chat_id", ev.ChatID, "panic", r)
		}
	}()
	d.handler.HandleEvent(ctx, ev)
}
