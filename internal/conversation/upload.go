package conversation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/nerrad567/printwatch/internal/audit"
	"github.com/nerrad567/printwatch/internal/chat"
)

var errTooLarge = errors.New("model file exceeds upload limit")

// uploadModel downloads the attached model to a temporary file, submits it
// and removes the file before returning to PrintJob, whatever the outcome.
func uploadModel(e *Engine, ctx context.Context, t turn) State {
	doc := t.ev.Document
	name := modelName(doc)

	err := e.submitModel(ctx, doc, name)
	e.record(ctx, t.ev, audit.ActionSubmit, err, map[string]any{"file": name, "size": doc.Size})
	switch {
	case errors.Is(err, errTooLarge):
		e.send(ctx, t.ev.ChatID, line(headerPrintJob, msgFileTooLarge))
	case err != nil:
		e.logger.Warn("submitting model failed", "file", name, "error", err)
		e.send(ctx, t.ev.ChatID, line(headerPrintJob, msgFileFailed))
	default:
		e.logger.Info("model submitted", "file", name, "user_id", t.ev.UserID)
		e.send(ctx, t.ev.ChatID, line(headerPrintJob, msgFileSent))
	}
	return PrintJob
}

func (e *Engine) submitModel(ctx context.Context, doc *chat.Document, name string) error {
	if doc.Size > e.maxUpload {
		return errTooLarge
	}

	f, err := os.CreateTemp(e.uploadDir, "model-*"+filepath.Ext(name))
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer func() {
		f.Close() //nolint:errcheck // already closed on the success path
		if rmErr := os.Remove(f.Name()); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			e.logger.Warn("removing temp model file failed", "path", f.Name(), "error", rmErr)
		}
	}()

	w := &limitedWriter{w: f, remaining: e.maxUpload}
	if err := e.transport.Download(ctx, doc.FileID, w); err != nil {
		if w.exceeded {
			return errTooLarge
		}
		return fmt.Errorf("downloading model: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("writing temp file: %w", err)
	}

	return e.device.SubmitPrintJob(ctx, name, f.Name())
}

// modelName returns a safe base name for the uploaded file.
func modelName(doc *chat.Document) string {
	name := filepath.Base(strings.ReplaceAll(doc.FileName, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "model.gcode"
	}
	return name
}

// limitedWriter fails once more than remaining bytes are written.
type limitedWriter struct {
	w         io.Writer
	remaining int64
	exceeded  bool
}

func (l *limitedWriter) Write(p []byte) (int, error) {
	if int64(len(p)) > l.remaining {
		l.exceeded = true
		return 0, errTooLarge
	}
	n, err := l.w.Write(p)
	l.remaining -= int64(n)
	return n, err
}
