package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/nerrad567/printwatch/internal/chat"
)

const downloadTimeout = 2 * time.Minute

// botAPI is the subset of *tgbotapi.BotAPI the transport uses.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Logger is the logging interface used by this package.
// *logging.Logger satisfies it.
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

// Config configures the transport.
type Config struct {
	// Token is the bot token issued by BotFather.
	Token string

	// PollTimeout is the long-poll timeout in seconds.
	PollTimeout int
}

// Transport implements chat.Transport for Telegram.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Transport struct {
	api         botAPI
	httpClient  *http.Client
	pollTimeout int

	mu     sync.RWMutex
	logger Logger
}

var _ chat.Transport = (*Transport)(nil)

// New authenticates with the Bot API and returns a ready transport.
//
// Returns:
//   - *Transport: Transport bound to the bot identified by cfg.Token
//   - error: ErrNoToken, or the Bot API error from the identity check
func New(cfg Config) (*Transport, error) {
	if cfg.Token == "" {
		return nil, ErrNoToken
	}
	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram: connecting bot: %w", err)
	}
	t := newTransport(api, &http.Client{Timeout: downloadTimeout})
	t.pollTimeout = cfg.PollTimeout
	return t, nil
}

func newTransport(api botAPI, client *http.Client) *Transport {
	return &Transport{
		api:        api,
		httpClient: client,
		logger:     noopLogger{},
	}
}

// SetLogger sets the logger for update handling.
func (t *Transport) SetLogger(logger Logger) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if logger == nil {
		logger = noopLogger{}
	}
	t.logger = logger
}

func (t *Transport) log() Logger {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.logger
}

// SendText sends msg to chatID.
func (t *Transport) SendText(ctx context.Context, chatID int64, msg chat.Message) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	cfg := tgbotapi.NewMessage(chatID, msg.Text)
	if msg.HTML {
		cfg.ParseMode = tgbotapi.ModeHTML
	}
	switch {
	case msg.Inline != nil:
		cfg.ReplyMarkup = inlineKeyboard(msg.Inline)
	case msg.Reply != nil:
		cfg.ReplyMarkup = replyKeyboard(msg.Reply)
	}

	sent, err := t.api.Send(cfg)
	if err != nil {
		return 0, fmt.Errorf("telegram: sending message: %w", err)
	}
	return sent.MessageID, nil
}

// SendPhoto uploads photo to chatID.
func (t *Transport) SendPhoto(ctx context.Context, chatID int64, photo chat.Photo) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	cfg := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: photo.Name, Bytes: photo.Data})
	cfg.Caption = photo.Caption
	if _, err := t.api.Send(cfg); err != nil {
		return fmt.Errorf("telegram: sending photo: %w", err)
	}
	return nil
}

// EditText replaces the text and inline keyboard of messageID. The Bot API
// drops the keyboard of an edit sent without one, so callers that want to
// keep their buttons must pass them again in msg.Inline.
func (t *Transport) EditText(ctx context.Context, chatID int64, messageID int, msg chat.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var cfg tgbotapi.EditMessageTextConfig
	if msg.Inline != nil {
		cfg = tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, msg.Text, inlineKeyboard(msg.Inline))
	} else {
		cfg = tgbotapi.NewEditMessageText(chatID, messageID, msg.Text)
	}
	if msg.HTML {
		cfg.ParseMode = tgbotapi.ModeHTML
	}

	if _, err := t.api.Request(cfg); err != nil {
		return fmt.Errorf("telegram: editing message: %w", err)
	}
	return nil
}

// Download streams the file identified by fileID to w.
func (t *Transport) Download(ctx context.Context, fileID string, w io.Writer) error {
	url, err := t.api.GetFileDirectURL(fileID)
	if err != nil {
		return fmt.Errorf("%w: resolving file: %w", ErrDownloadFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDownloadFailed, err)
	}
	resp, err := t.httpClient.Do(req)
	if err != nil {
		// The URL embeds the bot token; report only the cause.
		return fmt.Errorf("%w: %w", ErrDownloadFailed, unwrapURLError(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrDownloadFailed, resp.StatusCode)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("%w: %w", ErrDownloadFailed, err)
	}
	return nil
}

func inlineKeyboard(rows [][]string) tgbotapi.InlineKeyboardMarkup {
	keyboard := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, label := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(label, label))
		}
		keyboard = append(keyboard, buttons)
	}
	return tgbotapi.NewInlineKeyboardMarkup(keyboard...)
}

func replyKeyboard(rows [][]string) tgbotapi.ReplyKeyboardMarkup {
	keyboard := make([][]tgbotapi.KeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tgbotapi.KeyboardButton, 0, len(row))
		for _, label := range row {
			buttons = append(buttons, tgbotapi.NewKeyboardButton(label))
		}
		keyboard = append(keyboard, buttons)
	}
	markup := tgbotapi.NewReplyKeyboard(keyboard...)
	markup.ResizeKeyboard = true
	return markup
}
