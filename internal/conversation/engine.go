package conversation

import (
	"context"
	"errors"
	"html"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/printwatch/internal/audit"
	"github.com/nerrad567/printwatch/internal/chat"
	"github.com/nerrad567/printwatch/internal/printer"
)

const (
	defaultSessionTTL = 10 * time.Minute
	defaultMaxUpload  = 64 << 20
)

// ErrInvalidConfig is returned by New when a required collaborator is missing.
var ErrInvalidConfig = errors.New("conversation: invalid configuration")

// State is a conversation state.
type State int

// Conversation states. Idle means no session.
const (
	Idle State = iota
	Settings
	Leds
	PrintJob
	PausingConfirm
	ResumingConfirm
	AwaitingModelFile
)

var stateNames = map[State]string{
	Idle:              "idle",
	Settings:          "settings",
	Leds:              "leds",
	PrintJob:          "print_job",
	PausingConfirm:    "pausing_confirm",
	ResumingConfirm:   "resuming_confirm",
	AwaitingModelFile: "awaiting_model_file",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Device is the printer surface the menus drive. *printer.Client implements it.
type Device interface {
	PrintJobState(ctx context.Context) (string, error)
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	LEDBrightness(ctx context.Context) (float64, error)
	SetLEDBrightness(ctx context.Context, level float64) error
	Thumbnail(ctx context.Context) (printer.Thumbnail, error)
	SubmitPrintJob(ctx context.Context, name, path string) error
}

// Authorizer answers access checks. *access.Registry implements it.
type Authorizer interface {
	IsAuthorized(userID int64, level string) bool
}

// Auditor records privileged actions. *audit.Recorder implements it.
type Auditor interface {
	Record(ctx context.Context, e audit.Entry)
}

// Logger is the logging surface used by the engine.
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

type noopAuditor struct{}

func (noopAuditor) Record(context.Context, audit.Entry) {}

// Config holds the engine's collaborators and limits.
type Config struct {
	Device     Device
	Authorizer Authorizer
	Transport  chat.Transport
	Auditor    Auditor

	// Level is the access level every transition requires.
	Level string

	// SessionTTL drops sessions idle for longer. Default: 10 minutes.
	SessionTTL time.Duration

	// UploadDir holds model files while they are submitted. Empty means the
	// system temp directory.
	UploadDir string

	// MaxUploadBytes rejects larger model files. Default: 64 MiB.
	MaxUploadBytes int64
}

// session is one chat's conversation.
type session struct {
	// mu serialises transitions on this session.
	mu    sync.Mutex
	state State

	// lastActive is unix nanoseconds, read by the sweeper without mu.
	lastActive atomic.Int64
}

// turn is the context a transition runs with.
type turn struct {
	ev    chat.Event
	state State
}

// transition performs an input's side effects and returns the next state.
type transition func(e *Engine, ctx context.Context, t turn) State

// inputDocument keys document uploads in the transition table.
const inputDocument = "\x00document"

// Engine runs the settings conversation for every chat.
//
// Thread Safety:
//   - Safe for concurrent use. Events for one chat are applied in the order
//     their calls acquire the session; different chats proceed independently.
type Engine struct {
	device    Device
	auth      Authorizer
	transport chat.Transport
	auditor   Auditor
	level     string
	ttl       time.Duration
	uploadDir string
	maxUpload int64
	now       func() time.Time
	table     map[State]map[string]transition

	mu       sync.Mutex
	sessions map[int64]*session

	logger Logger
}

// New creates an Engine.
//
// Parameters:
//   - cfg: Device, Authorizer, Transport and Level are required
//
// Returns:
//   - *Engine: Ready to handle events
//   - error: ErrInvalidConfig if a required field is missing
func New(cfg Config) (*Engine, error) {
	if cfg.Device == nil || cfg.Authorizer == nil || cfg.Transport == nil || cfg.Level == "" {
		return nil, ErrInvalidConfig
	}
	e := &Engine{
		device:    cfg.Device,
		auth:      cfg.Authorizer,
		transport: cfg.Transport,
		auditor:   cfg.Auditor,
		level:     cfg.Level,
		ttl:       cfg.SessionTTL,
		uploadDir: cfg.UploadDir,
		maxUpload: cfg.MaxUploadBytes,
		now:       time.Now,
		table:     newTable(),
		sessions:  make(map[int64]*session),
		logger:    noopLogger{},
	}
	if e.auditor == nil {
		e.auditor = noopAuditor{}
	}
	if e.ttl <= 0 {
		e.ttl = defaultSessionTTL
	}
	if e.maxUpload <= 0 {
		e.maxUpload = defaultMaxUpload
	}
	return e, nil
}

// SetLogger sets the logger.
func (e *Engine) SetLogger(logger Logger) {
	if logger != nil {
		e.logger = logger
	}
}

// State returns chatID's current state, or Idle with no live session.
func (e *Engine) State(chatID int64) State {
	s := e.lookup(chatID)
	if s == nil {
		return Idle
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Enter starts or restarts chatID's session at Settings and sends the
// settings menu as a new message. Unauthorized users get no reply.
func (e *Engine) Enter(ctx context.Context, ev chat.Event) {
	if !e.authorized(ctx, ev, Entry) {
		return
	}

	s := &session{state: Settings}
	s.lastActive.Store(e.now().UnixNano())
	e.mu.Lock()
	e.sessions[ev.ChatID] = s
	e.mu.Unlock()

	msg := chat.Message{Text: headerSettings, Inline: settingsKeyboard}
	if _, err := e.transport.SendText(ctx, ev.ChatID, msg); err != nil {
		e.logger.Warn("sending settings menu failed", "chat_id", ev.ChatID, "error", err)
	}
}

// Handle applies ev to chatID's session.
//
// Returns:
//   - bool: false if ev was left for other handlers: there was no session,
//     or ev was text other than Entry, which also ends the session
func (e *Engine) Handle(ctx context.Context, ev chat.Event) bool {
	if ev.Text == Entry {
		e.Enter(ctx, ev)
		return true
	}

	s := e.lookup(ev.ChatID)
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := inputKey(ev)
	step, ok := e.table[s.state][key]
	if !ok {
		e.logger.Debug("conversation ended by unrecognised input",
			"chat_id", ev.ChatID, "state", s.state.String())
		e.end(ev.ChatID, s)
		return ev.IsCallback() || ev.Document != nil
	}

	if !e.authorized(ctx, ev, key) {
		return true
	}

	s.lastActive.Store(e.now().UnixNano())
	next := step(e, ctx, turn{ev: ev, state: s.state})
	e.logger.Debug("conversation transition",
		"chat_id", ev.ChatID, "from", s.state.String(), "to", next.String())
	if next == Idle {
		e.end(ev.ChatID, s)
		return true
	}
	s.state = next
	return true
}

// Sweep drops sessions idle longer than the TTL and reports how many went.
func (e *Engine) Sweep() int {
	cutoff := e.now().Add(-e.ttl).UnixNano()
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for id, s := range e.sessions {
		if s.lastActive.Load() < cutoff {
			delete(e.sessions, id)
			n++
		}
	}
	return n
}

// RunSweeper calls Sweep every interval until ctx is cancelled.
func (e *Engine) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := e.Sweep(); n > 0 {
				e.logger.Debug("expired conversation sessions", "count", n)
			}
		}
	}
}

// lookup returns the live session for chatID, expiring it lazily.
func (e *Engine) lookup(chatID int64) *session {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.sessions[chatID]
	if s == nil {
		return nil
	}
	if s.lastActive.Load() < e.now().Add(-e.ttl).UnixNano() {
		delete(e.sessions, chatID)
		return nil
	}
	return s
}

// end removes s if it is still chatID's session.
func (e *Engine) end(chatID int64, s *session) {
	e.mu.Lock()
	if e.sessions[chatID] == s {
		delete(e.sessions, chatID)
	}
	e.mu.Unlock()
}

// authorized checks the user's level and records denials.
func (e *Engine) authorized(ctx context.Context, ev chat.Event, input string) bool {
	if e.auth.IsAuthorized(ev.UserID, e.level) {
		return true
	}
	e.logger.Debug("conversation input denied", "user_id", ev.UserID, "input", input)
	e.auditor.Record(ctx, audit.Entry{
		Action:  audit.ActionAccessDenied,
		UserID:  ev.UserID,
		ChatID:  ev.ChatID,
		Source:  audit.SourceChat,
		Outcome: audit.OutcomeDenied,
		Details: map[string]any{"input": input},
	})
	return false
}

// inputKey maps ev to its transition table key. Menus are driven only by
// inline buttons and documents; typed or reply keyboard text has no key.
func inputKey(ev chat.Event) string {
	switch {
	case ev.Document != nil:
		return inputDocument
	case ev.IsCallback():
		return ev.Callback
	default:
		return ""
	}
}

// edit replaces the menu message the event came from, with keyboard as its
// inline keyboard. The edit is skipped when the message already shows text.
func (e *Engine) edit(ctx context.Context, ev chat.Event, text string, keyboard [][]string, isHTML bool) {
	shown := text
	if isHTML {
		shown = plainText(text)
	}
	if ev.MessageText == shown {
		return
	}
	msg := chat.Message{Text: text, HTML: isHTML, Inline: keyboard}
	if err := e.transport.EditText(ctx, ev.ChatID, ev.MessageID, msg); err != nil {
		e.logger.Warn("editing menu failed", "chat_id", ev.ChatID, "error", err)
	}
}

// send posts a new plain message.
func (e *Engine) send(ctx context.Context, chatID int64, text string) {
	if _, err := e.transport.SendText(ctx, chatID, chat.Message{Text: text}); err != nil {
		e.logger.Warn("sending message failed", "chat_id", chatID, "error", err)
	}
}

// plainText renders HTML message text the way chat clients report it back:
// tags removed and entities decoded.
func plainText(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>' && inTag:
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return html.UnescapeString(b.String())
}
