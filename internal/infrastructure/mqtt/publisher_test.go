package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/printwatch/internal/printer"
)

type published struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

type fakePublisher struct {
	msgs []published
	err  error
}

func (f *fakePublisher) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, published{topic, payload, qos, retained})
	return nil
}

func newTestPublisher(pub Publisher) *StatePublisher {
	p := NewStatePublisher(pub, Topics{}, 1)
	p.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return p
}

var (
	idle     = printer.State{PrinterStatus: printer.StatusIdle, PrintJobState: printer.JobNone}
	printing = printer.State{PrinterStatus: printer.StatusPrinting, PrintJobState: printer.JobPrinting}
)

func TestStatePublisher_OnPollPublishesOnlyChanges(t *testing.T) {
	pub := &fakePublisher{}
	p := newTestPublisher(pub)
	ctx := context.Background()

	for _, st := range []printer.State{idle, idle, printing, printing} {
		if err := p.OnPoll(ctx, st); err != nil {
			t.Fatalf("OnPoll() error = %v", err)
		}
	}

	if len(pub.msgs) != 2 {
		t.Fatalf("published %d messages, want 2", len(pub.msgs))
	}
	msg := pub.msgs[1]
	if msg.topic != "printwatch/printer/state" || !msg.retained || msg.qos != 1 {
		t.Errorf("message = %+v, want retained qos 1 on state topic", msg)
	}

	var got StateMessage
	if err := json.Unmarshal(msg.payload, &got); err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
	if got.State != printing || got.Timestamp != "2026-03-01T12:00:00Z" {
		t.Errorf("payload = %+v", got)
	}
}

func TestStatePublisher_RetriesAfterFailure(t *testing.T) {
	pub := &fakePublisher{err: ErrNotConnected}
	p := newTestPublisher(pub)
	ctx := context.Background()

	if err := p.OnPoll(ctx, idle); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("OnPoll() error = %v, want ErrNotConnected", err)
	}

	pub.err = nil
	if err := p.OnPoll(ctx, idle); err != nil {
		t.Fatalf("OnPoll() error = %v", err)
	}
	if len(pub.msgs) != 1 {
		t.Errorf("published %d messages after recovery, want 1", len(pub.msgs))
	}
}

func TestStatePublisher_OnChange(t *testing.T) {
	pub := &fakePublisher{}
	p := newTestPublisher(pub)

	if err := p.OnChange(context.Background(), idle, printing); err != nil {
		t.Fatalf("OnChange() error = %v", err)
	}
	if len(pub.msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(pub.msgs))
	}
	msg := pub.msgs[0]
	if msg.topic != "printwatch/printer/events" || msg.retained {
		t.Errorf("message = %+v, want non-retained event", msg)
	}

	var got EventMessage
	if err := json.Unmarshal(msg.payload, &got); err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
	if got.Type != EventStateChanged || got.State != printing || got.Previous != idle {
		t.Errorf("event = %+v", got)
	}
}
