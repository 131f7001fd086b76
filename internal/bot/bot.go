package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/printwatch/internal/chat"
	"github.com/nerrad567/printwatch/internal/printer"
	"github.com/nerrad567/printwatch/internal/textfmt"
)

// ErrInvalidConfig is returned by New when a required collaborator is missing.
var ErrInvalidConfig = errors.New("bot: invalid configuration")

// Device is the printer surface the main menu reads. *printer.Client
// implements it.
type Device interface {
	CameraImage(ctx context.Context, source string) ([]byte, error)
	PrintJob(ctx context.Context) (printer.PrintJob, error)
	PrinterInfo(ctx context.Context) (printer.PrinterInfo, error)
}

// Authorizer answers access checks. *access.Registry implements it.
type Authorizer interface {
	IsAuthorized(userID int64, level string) bool
}

// Conversation takes events that belong to a settings session.
// *conversation.Engine implements it.
type Conversation interface {
	Handle(ctx context.Context, ev chat.Event) bool
}

// Logger is the logging surface used by the bot.
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

// Config holds the bot's collaborators.
type Config struct {
	Device       Device
	Authorizer   Authorizer
	Transport    chat.Transport
	Conversation Conversation

	// MonitorLevel gates read-only commands; ControlLevel selects the
	// control keyboard.
	MonitorLevel string
	ControlLevel string

	// CameraSource is printer.CameraSnapshot or printer.CameraStream.
	CameraSource string

	// Location is used for times in reports. Default: time.Local.
	Location *time.Location
}

type command func(b *Bot, ctx context.Context, ev chat.Event)

// Bot answers main menu commands.
type Bot struct {
	device       Device
	auth         Authorizer
	transport    chat.Transport
	conversation Conversation
	monitor      string
	control      string
	cameraSource string
	loc          *time.Location
	now          func() time.Time

	commands map[string]command
	buttons  map[string]command

	logger Logger
}

// New creates a Bot.
func New(cfg Config) (*Bot, error) {
	if cfg.Device == nil || cfg.Authorizer == nil || cfg.Transport == nil ||
		cfg.MonitorLevel == "" || cfg.ControlLevel == "" {
		return nil, ErrInvalidConfig
	}
	b := &Bot{
		device:       cfg.Device,
		auth:         cfg.Authorizer,
		transport:    cfg.Transport,
		conversation: cfg.Conversation,
		monitor:      cfg.MonitorLevel,
		control:      cfg.ControlLevel,
		cameraSource: cfg.CameraSource,
		loc:          cfg.Location,
		now:          time.Now,
		logger:       noopLogger{},
	}
	if b.loc == nil {
		b.loc = time.Local
	}

	b.commands = map[string]command{
		cmdStart:    (*Bot).start,
		cmdMyID:     (*Bot).myID,
		cmdTest:     monitorOnly((*Bot).alive),
		cmdImage:    monitorOnly((*Bot).image),
		cmdPrintJob: monitorOnly((*Bot).printJob),
		cmdPrinter:  monitorOnly((*Bot).printerStatus),
	}
	b.buttons = map[string]command{
		btnMyID:     (*Bot).myID,
		btnTest:     monitorOnly((*Bot).alive),
		btnImage:    monitorOnly((*Bot).image),
		btnPrintJob: monitorOnly((*Bot).printJob),
		btnPrinter:  monitorOnly((*Bot).printerStatus),
	}
	return b, nil
}

// SetLogger sets the logger.
func (b *Bot) SetLogger(logger Logger) {
	if logger != nil {
		b.logger = logger
	}
}

// HandleEvent implements chat.Handler.
func (b *Bot) HandleEvent(ctx context.Context, ev chat.Event) {
	if b.conversation != nil && b.conversation.Handle(ctx, ev) {
		return
	}

	var cmd command
	switch {
	case ev.IsCommand():
		cmd = b.commands[ev.Command]
	case ev.Text != "":
		cmd = b.buttons[ev.Text]
		if cmd == nil && strings.EqualFold(ev.Text, praiseText) {
			cmd = (*Bot).praise
		}
	}
	if cmd == nil {
		b.logger.Debug("ignoring event", "chat_id", ev.ChatID, "command", ev.Command)
		return
	}
	cmd(b, ctx, ev)
}

// monitorOnly drops the command silently for users below the monitor level.
func monitorOnly(cmd command) command {
	return func(b *Bot, ctx context.Context, ev chat.Event) {
		if !b.auth.IsAuthorized(ev.UserID, b.monitor) {
			b.logger.Debug("command denied", "user_id", ev.UserID)
			return
		}
		cmd(b, ctx, ev)
	}
}

func (b *Bot) start(ctx context.Context, ev chat.Event) {
	msg := chat.Message{Text: unauthorizedHelp, Reply: unauthorizedKeyboard}
	switch {
	case b.auth.IsAuthorized(ev.UserID, b.control):
		msg = chat.Message{Text: monitorHelp, Reply: controlKeyboard}
	case b.auth.IsAuthorized(ev.UserID, b.monitor):
		msg = chat.Message{Text: monitorHelp, Reply: monitorKeyboard}
	}
	b.sendMessage(ctx, ev.ChatID, msg)
}

func (b *Bot) myID(ctx context.Context, ev chat.Event) {
	b.send(ctx, ev.ChatID, fmt.Sprintf(msgUserIDFormat, ev.UserID))
}

func (b *Bot) alive(ctx context.Context, ev chat.Event) {
	b.send(ctx, ev.ChatID, msgAlive)
}

func (b *Bot) praise(ctx context.Context, ev chat.Event) {
	b.send(ctx, ev.ChatID, msgOK)
}

func (b *Bot) image(ctx context.Context, ev chat.Event) {
	b.send(ctx, ev.ChatID, msgRetrieving)

	img, err := b.device.CameraImage(ctx, b.cameraSource)
	if err != nil {
		b.logger.Warn("camera image failed", "error", err)
		b.send(ctx, ev.ChatID, msgNoImage)
		return
	}

	name := "printer_" + b.now().In(b.loc).Format(imageNameLayout) + ".jpeg"
	b.send(ctx, ev.ChatID, fmt.Sprintf(msgSendingFormat, name))
	if err := b.transport.SendPhoto(ctx, ev.ChatID, chat.Photo{Name: name, Data: img}); err != nil {
		b.logger.Warn("sending photo failed", "chat_id", ev.ChatID, "error", err)
	}
}

func (b *Bot) printJob(ctx context.Context, ev chat.Event) {
	job, err := b.device.PrintJob(ctx)
	switch {
	case errors.Is(err, printer.ErrDeviceRejected):
		b.sendMessage(ctx, ev.ChatID, chat.Message{Text: textfmt.NoPrintJob, HTML: true})
	case err != nil:
		b.logger.Warn("print job report failed", "error", err)
		b.send(ctx, ev.ChatID, msgNoJobReport)
	default:
		report := textfmt.PrintJobReport(job, b.loc, b.now())
		b.sendMessage(ctx, ev.ChatID, chat.Message{Text: report, HTML: true})
	}
}

func (b *Bot) printerStatus(ctx context.Context, ev chat.Event) {
	info, err := b.device.PrinterInfo(ctx)
	if err != nil {
		b.logger.Warn("printer report failed", "error", err)
		b.send(ctx, ev.ChatID, msgNoStatus)
		return
	}
	b.sendMessage(ctx, ev.ChatID, chat.Message{Text: textfmt.PrinterReport(info), HTML: true})
}

func (b *Bot) send(ctx context.Context, chatID int64, text string) {
	b.sendMessage(ctx, chatID, chat.Message{Text: text})
}

func (b *Bot) sendMessage(ctx context.Context, chatID int64, msg chat.Message) {
	if _, err := b.transport.SendText(ctx, chatID, msg); err != nil {
		b.logger.Warn("sending message failed", "chat_id", chatID, "error", err)
	}
}
