package history

import (
	"context"

	"github.com/nerrad567/printwatch/internal/printer"
)

// Observer records every transition the watcher reports.
type Observer struct {
	repo Repository
}

// NewObserver returns a watcher observer writing to repo.
func NewObserver(repo Repository) *Observer {
	return &Observer{repo: repo}
}

// OnPoll does nothing; only transitions are kept.
func (o *Observer) OnPoll(context.Context, printer.State) error { return nil }

// OnChange stores the transition from prev to st.
func (o *Observer) OnChange(ctx context.Context, prev, st printer.State) error {
	return o.repo.Record(ctx, &Transition{State: st, Previous: prev})
}
