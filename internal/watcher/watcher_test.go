package watcher

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/printwatch/internal/chat/chattest"
	"github.com/nerrad567/printwatch/internal/printer"
)

// scriptedPoller returns its results in order, repeating the last one.
type scriptedPoller struct {
	mu      sync.Mutex
	results []pollResult
	calls   int
}

type pollResult struct {
	st  printer.State
	err error
}

func (p *scriptedPoller) State(context.Context) (printer.State, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r := p.results[min(p.calls, len(p.results)-1)]
	p.calls++
	return r.st, r.err
}

func (p *scriptedPoller) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type staticRoster []int64

func (r staticRoster) NotifyRoster() []int64 { return r }

type recordingObserver struct {
	mu      sync.Mutex
	polls   int
	changes [][2]printer.State
	err     error
}

func (o *recordingObserver) OnPoll(context.Context, printer.State) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.polls++
	return o.err
}

func (o *recordingObserver) OnChange(_ context.Context, prev, st printer.State) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.changes = append(o.changes, [2]printer.State{prev, st})
	return o.err
}

func st(status, job string) pollResult {
	return pollResult{st: printer.State{PrinterStatus: status, PrintJobState: job}}
}

func newTestWatcher(t *testing.T, poller Poller, roster Roster, observers ...Observer) (*Watcher, *chattest.Recorder) {
	t.Helper()
	rec := chattest.NewRecorder()
	w, err := New(Config{Interval: time.Hour, Poller: poller, Roster: roster, Transport: rec, Observers: observers})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return w, rec
}

func TestPoll_NotifiesOnlyOnTransition(t *testing.T) {
	poller := &scriptedPoller{results: []pollResult{
		st(printer.StatusIdle, printer.JobNone),
		st(printer.StatusIdle, printer.JobNone),
		st(printer.StatusPrinting, printer.JobPrinting),
	}}
	w, rec := newTestWatcher(t, poller, staticRoster{1, 2})
	ctx := context.Background()

	want := []bool{false, false, true}
	for i, wantChanged := range want {
		changed, err := w.Poll(ctx)
		if err != nil {
			t.Fatalf("poll %d error = %v", i+1, err)
		}
		if changed != wantChanged {
			t.Errorf("poll %d changed = %v, want %v", i+1, changed, wantChanged)
		}
	}

	calls := rec.Calls()
	if len(calls) != 2 {
		t.Fatalf("sent %d messages, want 2 (one per roster member)", len(calls))
	}
	for i, id := range []int64{1, 2} {
		if calls[i].ChatID != id {
			t.Errorf("message %d went to %d, want %d", i, calls[i].ChatID, id)
		}
		if !calls[i].Message.HTML || !strings.HasPrefix(calls[i].Message.Text, "Status Changed") {
			t.Errorf("message %d = %+v, want HTML status change", i, calls[i].Message)
		}
	}
}

func TestPoll_BaselineNeverNotifies(t *testing.T) {
	poller := &scriptedPoller{results: []pollResult{st(printer.StatusPrinting, printer.JobPrinting)}}
	w, rec := newTestWatcher(t, poller, staticRoster{1})

	changed, err := w.Poll(context.Background())
	if err != nil || changed {
		t.Fatalf("first Poll() = %v, %v; want false, nil", changed, err)
	}
	if n := rec.Count(chattest.KindSend); n != 0 {
		t.Errorf("baseline sent %d messages, want 0", n)
	}
	cur, ok := w.Current()
	if !ok || cur.PrinterStatus != printer.StatusPrinting {
		t.Errorf("Current() = %+v, %v; want printing baseline", cur, ok)
	}
}

func TestPoll_ErrorKeepsSnapshot(t *testing.T) {
	poller := &scriptedPoller{results: []pollResult{
		st(printer.StatusIdle, printer.JobNone),
		{err: printer.ErrDeviceUnreachable},
		st(printer.StatusIdle, printer.JobNone),
		st(printer.StatusPrinting, printer.JobPrinting),
	}}
	w, rec := newTestWatcher(t, poller, staticRoster{1})
	ctx := context.Background()

	w.Poll(ctx) //nolint:errcheck // baseline
	if _, err := w.Poll(ctx); !errors.Is(err, printer.ErrDeviceUnreachable) {
		t.Fatalf("Poll() error = %v, want ErrDeviceUnreachable", err)
	}
	cur, _ := w.Current()
	if cur.PrinterStatus != printer.StatusIdle {
		t.Errorf("snapshot after error = %+v, want idle", cur)
	}

	if changed, _ := w.Poll(ctx); changed {
		t.Error("poll after recovery reported a change for an unchanged state")
	}
	if changed, _ := w.Poll(ctx); !changed {
		t.Error("transition after recovery was not reported")
	}
	if n := rec.Count(chattest.KindSend); n != 1 {
		t.Errorf("sent %d messages, want 1", n)
	}
}

func TestPoll_PauseSourceAloneIsNotATransition(t *testing.T) {
	paused := printer.State{PrinterStatus: printer.StatusPrinting, PrintJobState: printer.JobPaused, PauseSource: "user"}
	pausedByDevice := paused
	pausedByDevice.PauseSource = "printer"

	poller := &scriptedPoller{results: []pollResult{{st: paused}, {st: pausedByDevice}}}
	w, rec := newTestWatcher(t, poller, staticRoster{1})
	ctx := context.Background()

	w.Poll(ctx) //nolint:errcheck // baseline
	if changed, _ := w.Poll(ctx); changed {
		t.Error("pause source change reported as a transition")
	}
	if rec.Count(chattest.KindSend) != 0 {
		t.Error("pause source change sent a notification")
	}
}

func TestPoll_ObserversAndSendFailures(t *testing.T) {
	poller := &scriptedPoller{results: []pollResult{
		st(printer.StatusIdle, printer.JobNone),
		st(printer.StatusPrinting, printer.JobPrinting),
	}}
	failing := &recordingObserver{err: errors.New("broker down")}
	w, rec := newTestWatcher(t, poller, staticRoster{1, 2}, failing)
	late := &recordingObserver{}
	w.AddObserver(late)
	rec.FailSend = true
	ctx := context.Background()

	w.Poll(ctx) //nolint:errcheck // baseline
	changed, err := w.Poll(ctx)
	if err != nil || !changed {
		t.Fatalf("Poll() = %v, %v; want true, nil", changed, err)
	}

	for name, o := range map[string]*recordingObserver{"failing": failing, "late": late} {
		if o.polls != 2 {
			t.Errorf("%s observer saw %d polls, want 2", name, o.polls)
		}
		if len(o.changes) != 1 || o.changes[0][1].PrintJobState != printer.JobPrinting {
			t.Errorf("%s observer changes = %+v, want one change to printing", name, o.changes)
		}
	}
}

func TestStart_PollsImmediately(t *testing.T) {
	poller := &scriptedPoller{results: []pollResult{st(printer.StatusIdle, printer.JobNone)}}
	w, _ := newTestWatcher(t, poller, staticRoster{})

	w.Start(context.Background())
	deadline := time.Now().Add(2 * time.Second)
	for poller.Calls() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	w.Stop()
	w.Stop()

	if poller.Calls() != 1 {
		t.Errorf("polls after Start = %d, want 1 (interval is an hour)", poller.Calls())
	}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	rec := chattest.NewRecorder()
	poller := &scriptedPoller{results: []pollResult{st(printer.StatusIdle, printer.JobNone)}}

	tests := []struct {
		name string
		cfg  Config
	}{
		{"no poller", Config{Roster: staticRoster{}, Transport: rec}},
		{"no roster", Config{Poller: poller, Transport: rec}},
		{"no transport", Config{Poller: poller, Roster: staticRoster{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("New() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}
