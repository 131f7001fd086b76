package telegram

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/nerrad567/printwatch/internal/chat"
)

// fakeAPI records everything sent through it.
type fakeAPI struct {
	mu        sync.Mutex
	sent      []tgbotapi.Chattable
	requested []tgbotapi.Chattable
	sendErr   error
	fileURL   string
	updates   chan tgbotapi.Update
	stopped   bool
	nextID    int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{updates: make(chan tgbotapi.Update, 8), nextID: 500}
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return tgbotapi.Message{}, f.sendErr
	}
	f.sent = append(f.sent, c)
	f.nextID++
	return tgbotapi.Message{MessageID: f.nextID}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requested = append(f.requested, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetFileDirectURL(string) (string, error) {
	if f.fileURL == "" {
		return "", errors.New("file not found")
	}
	return f.fileURL, nil
}

func (f *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeAPI) StopReceivingUpdates() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

func (f *fakeAPI) requests() []tgbotapi.Chattable {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tgbotapi.Chattable(nil), f.requested...)
}

func TestSendText(t *testing.T) {
	tests := []struct {
		name       string
		msg        chat.Message
		wantParse  string
		wantMarkup any
	}{
		{
			name: "plain",
			msg:  chat.Message{Text: "Bot is alive 👍"},
		},
		{
			name:      "html inline",
			msg:       chat.Message{Text: "<b>Settings</b>", HTML: true, Inline: [][]string{{"LEDs 💡", "Print Job 🔲"}}},
			wantParse: tgbotapi.ModeHTML,
			wantMarkup: tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("LEDs 💡", "LEDs 💡"),
				tgbotapi.NewInlineKeyboardButtonData("Print Job 🔲", "Print Job 🔲"),
			)),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newFakeAPI()
			tr := newTransport(api, http.DefaultClient)

			id, err := tr.SendText(context.Background(), 42, tt.msg)
			if err != nil {
				t.Fatalf("SendText() error = %v", err)
			}
			if id != 501 {
				t.Errorf("message id = %d, want 501", id)
			}

			cfg, ok := api.sent[0].(tgbotapi.MessageConfig)
			if !ok {
				t.Fatalf("sent %T, want MessageConfig", api.sent[0])
			}
			if cfg.ChatID != 42 || cfg.Text != tt.msg.Text || cfg.ParseMode != tt.wantParse {
				t.Errorf("config = chat %d text %q parse %q", cfg.ChatID, cfg.Text, cfg.ParseMode)
			}
			if tt.wantMarkup != nil {
				got, ok := cfg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
				if !ok || len(got.InlineKeyboard) != 1 || len(got.InlineKeyboard[0]) != 2 {
					t.Fatalf("markup = %#v", cfg.ReplyMarkup)
				}
				if *got.InlineKeyboard[0][1].CallbackData != "Print Job 🔲" {
					t.Errorf("callback data = %q", *got.InlineKeyboard[0][1].CallbackData)
				}
			} else if cfg.ReplyMarkup != nil {
				t.Errorf("unexpected markup %#v", cfg.ReplyMarkup)
			}
		})
	}
}

func TestSendText_ReplyKeyboard(t *testing.T) {
	api := newFakeAPI()
	tr := newTransport(api, http.DefaultClient)

	msg := chat.Message{Text: "menu", Reply: [][]string{{"Print Job"}, {"Printer Status", "Image"}}}
	if _, err := tr.SendText(context.Background(), 1, msg); err != nil {
		t.Fatalf("SendText() error = %v", err)
	}

	cfg := api.sent[0].(tgbotapi.MessageConfig)
	markup, ok := cfg.ReplyMarkup.(tgbotapi.ReplyKeyboardMarkup)
	if !ok {
		t.Fatalf("markup = %T, want ReplyKeyboardMarkup", cfg.ReplyMarkup)
	}
	if !markup.ResizeKeyboard || len(markup.Keyboard) != 2 || markup.Keyboard[1][1].Text != "Image" {
		t.Errorf("keyboard = %+v", markup)
	}
}

func TestSendText_Errors(t *testing.T) {
	api := newFakeAPI()
	api.sendErr = errors.New("Forbidden: bot was blocked by the user")
	tr := newTransport(api, http.DefaultClient)

	if _, err := tr.SendText(context.Background(), 1, chat.Message{Text: "x"}); err == nil {
		t.Error("SendText() error = nil, want send failure")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := tr.SendText(ctx, 1, chat.Message{Text: "x"}); !errors.Is(err, context.Canceled) {
		t.Errorf("SendText(cancelled) error = %v, want context.Canceled", err)
	}
}

func TestSendPhoto(t *testing.T) {
	api := newFakeAPI()
	tr := newTransport(api, http.DefaultClient)

	photo := chat.Photo{Name: "printer_2026-03-01_12:00:00.jpeg", Data: []byte{0xff, 0xd8}, Caption: "cam"}
	if err := tr.SendPhoto(context.Background(), 7, photo); err != nil {
		t.Fatalf("SendPhoto() error = %v", err)
	}

	cfg, ok := api.sent[0].(tgbotapi.PhotoConfig)
	if !ok {
		t.Fatalf("sent %T, want PhotoConfig", api.sent[0])
	}
	file, ok := cfg.File.(tgbotapi.FileBytes)
	if !ok || file.Name != photo.Name || !bytes.Equal(file.Bytes, photo.Data) {
		t.Errorf("file = %#v", cfg.File)
	}
	if cfg.Caption != "cam" || cfg.ChatID != 7 {
		t.Errorf("config = %+v", cfg)
	}
}

func TestEditText(t *testing.T) {
	api := newFakeAPI()
	tr := newTransport(api, http.DefaultClient)
	ctx := context.Background()

	if err := tr.EditText(ctx, 3, 99, chat.Message{Text: "<b>LEDs</b>", HTML: true, Inline: [][]string{{"Back"}}}); err != nil {
		t.Fatalf("EditText() error = %v", err)
	}
	if err := tr.EditText(ctx, 3, 99, chat.Message{Text: "plain"}); err != nil {
		t.Fatalf("EditText() error = %v", err)
	}

	reqs := api.requests()
	withMarkup := reqs[0].(tgbotapi.EditMessageTextConfig)
	if withMarkup.MessageID != 99 || withMarkup.ParseMode != tgbotapi.ModeHTML || withMarkup.ReplyMarkup == nil {
		t.Fatalf("edit with markup = %+v", withMarkup)
	}
	rows := withMarkup.ReplyMarkup.InlineKeyboard
	if len(rows) != 1 || len(rows[0]) != 1 || rows[0][0].CallbackData == nil || *rows[0][0].CallbackData != "Back" {
		t.Errorf("edit keyboard = %+v, want the Back button", rows)
	}

	// The Bot API removes the keyboard of an edit without markup.
	bare := reqs[1].(tgbotapi.EditMessageTextConfig)
	if bare.ReplyMarkup != nil || bare.ParseMode != "" {
		t.Errorf("plain edit = %+v, want no markup and no parse mode", bare)
	}
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/missing") {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(";FLAVOR:Griffin\nG28\n"))
	}))
	defer srv.Close()

	api := newFakeAPI()
	api.fileURL = srv.URL + "/file/model.gcode"
	tr := newTransport(api, srv.Client())

	var buf bytes.Buffer
	if err := tr.Download(context.Background(), "file-1", &buf); err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if buf.String() != ";FLAVOR:Griffin\nG28\n" {
		t.Errorf("downloaded %q", buf.String())
	}

	api.fileURL = srv.URL + "/file/missing"
	if err := tr.Download(context.Background(), "file-2", &buf); !errors.Is(err, ErrDownloadFailed) {
		t.Errorf("Download(404) error = %v, want ErrDownloadFailed", err)
	}

	api.fileURL = ""
	if err := tr.Download(context.Background(), "file-3", &buf); !errors.Is(err, ErrDownloadFailed) {
		t.Errorf("Download(unknown) error = %v, want ErrDownloadFailed", err)
	}
}

func TestNew_RequiresToken(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, ErrNoToken) {
		t.Errorf("New() error = %v, want ErrNoToken", err)
	}
}
