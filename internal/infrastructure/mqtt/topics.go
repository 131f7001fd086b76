package mqtt

// DefaultTopicPrefix is the root of every topic this package publishes.
const DefaultTopicPrefix = "printwatch"

// Topics builds topic names under Prefix. The zero value uses
// DefaultTopicPrefix.
//
//	topics := mqtt.Topics{}
//	topics.PrinterState() // "printwatch/printer/state"
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}

// PrinterState is the retained topic holding the latest printer state.
func (t Topics) PrinterState() string {
	return t.prefix() + "/printer/state"
}

// PrinterEvents receives one message per state transition.
func (t Topics) PrinterEvents() string {
	return t.prefix() + "/printer/events"
}

// Presence is the retained online/offline topic of the bot itself. It also
// carries the last will.
func (t Topics) Presence() string {
	return t.prefix() + "/bot/presence"
}
