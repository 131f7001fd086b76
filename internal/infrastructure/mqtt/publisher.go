package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/printwatch/internal/printer"
)

// EventStateChanged is the type field of transition events.
const EventStateChanged = "printer.state_changed"

// Publisher is the publishing surface StatePublisher needs. *Client implements it.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// StateMessage is the retained payload on the printer state topic.
type StateMessage struct {
	printer.State
	Timestamp string `json:"timestamp"`
}

// EventMessage is published on the printer events topic for every transition.
type EventMessage struct {
	Type      string        `json:"type"`
	State     printer.State `json:"state"`
	Previous  printer.State `json:"previous"`
	Timestamp string        `json:"timestamp"`
}

// StatePublisher mirrors watcher snapshots onto MQTT topics. The retained
// state is republished only when it changes, so a steady printer does not
// generate traffic every poll.
//
// Thread Safety:
//   - Safe for concurrent use.
type StatePublisher struct {
	pub    Publisher
	topics Topics
	qos    byte
	now    func() time.Time

	mu   sync.Mutex
	last *printer.State
}

// NewStatePublisher creates a publisher writing under topics with the given QoS.
func NewStatePublisher(pub Publisher, topics Topics, qos byte) *StatePublisher {
	return &StatePublisher{
		pub:    pub,
		topics: topics,
		qos:    qos,
		now:    time.Now,
	}
}

// OnPoll publishes the retained state on first sight and whenever it differs
// from the last published value. A failed publish is retried on the next poll.
func (p *StatePublisher) OnPoll(_ context.Context, st printer.State) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.last != nil && !st.Differs(*p.last) {
		return nil
	}

	payload, err := json.Marshal(StateMessage{State: st, Timestamp: p.timestamp()})
	if err != nil {
		return fmt.Errorf("mqtt: encoding state: %w", err)
	}
	if err := p.pub.Publish(p.topics.PrinterState(), payload, p.qos, true); err != nil {
		return fmt.Errorf("mqtt: publishing state: %w", err)
	}

	p.last = &st
	return nil
}

// OnChange publishes one transition event.
func (p *StatePublisher) OnChange(_ context.Context, prev, st printer.State) error {
	payload, err := json.Marshal(EventMessage{
		Type:      EventStateChanged,
		State:     st,
		Previous:  prev,
		Timestamp: p.timestamp(),
	})
	if err != nil {
		return fmt.Errorf("mqtt: encoding event: %w", err)
	}
	if err := p.pub.Publish(p.topics.PrinterEvents(), payload, p.qos, false); err != nil {
		return fmt.Errorf("mqtt: publishing event: %w", err)
	}
	return nil
}

func (p *StatePublisher) timestamp() string {
	return p.now().UTC().Format(time.RFC3339)
}
