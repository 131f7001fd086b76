package audit

import (
	"context"
	"maps"
)

// Logger is the logging surface the Recorder needs.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// Entry is what a caller knows about an action at the time it happens.
type Entry struct {
	Action  string
	UserID  int64
	ChatID  int64
	Source  string
	Outcome string
	Details map[string]any
}

// Recorder writes entries to a Repository and swallows failures.
//
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	repo   Repository
	logger Logger
}

// NewRecorder creates a Recorder over repo.
func NewRecorder(repo Repository) *Recorder {
	return &Recorder{repo: repo, logger: noopLogger{}}
}

// SetLogger sets the logger used for write failures.
func (r *Recorder) SetLogger(l Logger) {
	if r != nil && l != nil {
		r.logger = l
	}
}

// Record stores e. Errors are logged, never returned.
func (r *Recorder) Record(ctx context.Context, e Entry) {
	if r == nil || r.repo == nil {
		return
	}
	log := &AuditLog{
		Action:  e.Action,
		UserID:  e.UserID,
		ChatID:  e.ChatID,
		Source:  e.Source,
		Outcome: e.Outcome,
		Details: maps.Clone(e.Details),
	}
	if err := r.repo.Create(ctx, log); err != nil {
		r.logger.Warn("audit write failed", "action", e.Action, "user_id", e.UserID, "error", err)
	}
}
