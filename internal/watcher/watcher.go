package watcher

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nerrad567/printwatch/internal/chat"
	"github.com/nerrad567/printwatch/internal/printer"
	"github.com/nerrad567/printwatch/internal/textfmt"
)

const defaultInterval = 5 * time.Second

// ErrInvalidConfig is returned by New when a required collaborator is missing.
var ErrInvalidConfig = errors.New("watcher: invalid configuration")

// Poller takes one combined printer snapshot. *printer.Client implements it.
type Poller interface {
	State(ctx context.Context) (printer.State, error)
}

// Roster lists the users to notify. *access.Registry implements it.
type Roster interface {
	NotifyRoster() []int64
}

// Observer receives snapshots after each successful poll.
type Observer interface {
	// OnPoll is called with every successful snapshot, including the baseline.
	OnPoll(ctx context.Context, st printer.State) error

	// OnChange is called when st differs from prev.
	OnChange(ctx context.Context, prev, st printer.State) error
}

// Logger is the logging surface used by the watcher.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config holds the watcher's collaborators.
type Config struct {
	// Interval between polls. Default: 5 seconds.
	Interval time.Duration

	// PollTimeout bounds one poll. Zero leaves it to the client's own timeout.
	PollTimeout time.Duration

	Poller    Poller
	Roster    Roster
	Transport chat.Transport
	Observers []Observer
}

// Watcher detects printer state transitions.
type Watcher struct {
	interval    time.Duration
	pollTimeout time.Duration
	poller      Poller
	roster      Roster
	transport   chat.Transport

	// pollMu serialises polls so the snapshot compare and swap is atomic.
	pollMu sync.Mutex

	mu        sync.RWMutex
	last      printer.State
	hasLast   bool
	observers []Observer

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger Logger
}

// New creates a Watcher. Call Start to begin polling.
//
// Parameters:
//   - cfg: Poller, Roster and Transport are required
//
// Returns:
//   - *Watcher: Ready to start
//   - error: ErrInvalidConfig if a collaborator is missing
func New(cfg Config) (*Watcher, error) {
	if cfg.Poller == nil || cfg.Roster == nil || cfg.Transport == nil {
		return nil, ErrInvalidConfig
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Watcher{
		interval:    interval,
		pollTimeout: cfg.PollTimeout,
		poller:      cfg.Poller,
		roster:      cfg.Roster,
		transport:   cfg.Transport,
		observers:   append([]Observer(nil), cfg.Observers...),
		done:        make(chan struct{}),
		logger:      noopLogger{},
	}, nil
}

// SetLogger sets the logger. Call before Start.
func (w *Watcher) SetLogger(logger Logger) {
	if logger != nil {
		w.logger = logger
	}
}

// AddObserver registers o for subsequent polls.
func (w *Watcher) AddObserver(o Observer) {
	w.mu.Lock()
	w.observers = append(w.observers, o)
	w.mu.Unlock()
}

// Current returns the last successful snapshot. ok is false before the
// first successful poll.
func (w *Watcher) Current() (st printer.State, ok bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.last, w.hasLast
}

// Start polls once immediately and then every interval until ctx is
// cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.loop(ctx)
}

// Stop halts polling and waits for an in-flight poll to return.
// Safe to call multiple times.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.wg.Wait()
	})
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.Poll(ctx) //nolint:errcheck // failures are logged by Poll

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case <-ticker.C:
			w.Poll(ctx) //nolint:errcheck // failures are logged by Poll
		}
	}
}

// Poll takes one snapshot and notifies on a transition.
//
// Returns:
//   - bool: true if a transition was detected
//   - error: the poll error, already logged; the snapshot is unchanged
func (w *Watcher) Poll(ctx context.Context) (bool, error) {
	w.pollMu.Lock()
	defer w.pollMu.Unlock()

	pollCtx := ctx
	if w.pollTimeout > 0 {
		var cancel context.CancelFunc
		pollCtx, cancel = context.WithTimeout(ctx, w.pollTimeout)
		defer cancel()
	}

	st, err := w.poller.State(pollCtx)
	if err != nil {
		w.logger.Warn("printer poll failed", "error", err)
		return false, err
	}

	w.mu.Lock()
	prev, hadPrev := w.last, w.hasLast
	w.last, w.hasLast = st, true
	observers := append([]Observer(nil), w.observers...)
	w.mu.Unlock()

	changed := hadPrev && st.Differs(prev)
	if changed {
		w.logger.Info("printer state changed",
			"printer_status", st.PrinterStatus,
			"printjob_state", st.PrintJobState,
			"previous_printer_status", prev.PrinterStatus,
			"previous_printjob_state", prev.PrintJobState,
		)
		w.notify(ctx, st)
	} else if !hadPrev {
		w.logger.Debug("printer baseline recorded",
			"printer_status", st.PrinterStatus, "printjob_state", st.PrintJobState)
	}

	for _, o := range observers {
		if err := o.OnPoll(ctx, st); err != nil {
			w.logger.Warn("observer poll hook failed", "error", err)
		}
		if changed {
			if err := o.OnChange(ctx, prev, st); err != nil {
				w.logger.Warn("observer change hook failed", "error", err)
			}
		}
	}
	return changed, nil
}

// notify sends the change message to every roster member. A failed send is
// logged and does not stop delivery to the rest.
func (w *Watcher) notify(ctx context.Context, st printer.State) {
	msg := chat.Message{Text: textfmt.StateChanged(st), HTML: true}
	for _, id := range w.roster.NotifyRoster() {
		if _, err := w.transport.SendText(ctx, id, msg); err != nil {
			w.logger.Warn("state notification failed", "user_id", id, "error", err)
		}
	}
}
