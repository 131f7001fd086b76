package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/printwatch/internal/printer"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

// ErrInvalidRetention is returned by Prune for a non-positive duration.
var ErrInvalidRetention = errors.New("history: retention must be positive")

// Transition is one observed state change.
type Transition struct {
	ID        int64         `json:"id"`
	State     printer.State `json:"state"`
	Previous  printer.State `json:"previous"`
	CreatedAt time.Time     `json:"created_at"`
}

// Repository stores state transitions.
//
// Implementations must be safe for concurrent use.
type Repository interface {
	Record(ctx context.Context, t *Transition) error
	Recent(ctx context.Context, limit int) ([]Transition, error)
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

// SQLiteRepository implements Repository on the state_history table.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a repository using db.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

// Record inserts t, setting its ID and filling CreatedAt when zero.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - t: Transition to persist; ID is overwritten
//
// Returns:
//   - error: nil on success, otherwise the underlying database error
func (r *SQLiteRepository) Record(ctx context.Context, t *Transition) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = r.now().UTC()
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO state_history
		   (printer_status, printjob_state, pause_source, prev_printer_status, prev_printjob_state, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		t.State.PrinterStatus, t.State.PrintJobState, t.State.PauseSource,
		t.Previous.PrinterStatus, t.Previous.PrintJobState,
		t.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting state history: %w", err)
	}
	if t.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("reading state history id: %w", err)
	}
	return nil
}

// Recent returns up to limit transitions, newest first.
// A limit of zero or less means 50; larger than 200 is clamped.
func (r *SQLiteRepository) Recent(ctx context.Context, limit int) ([]Transition, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	limit = min(limit, maxLimit)

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, printer_status, printjob_state, pause_source,
		        prev_printer_status, prev_printjob_state, created_at
		 FROM state_history
		 ORDER BY id DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying state history: %w", err)
	}
	defer rows.Close()

	out := make([]Transition, 0, limit)
	for rows.Next() {
		var t Transition
		var createdAt string
		if err := rows.Scan(&t.ID, &t.State.PrinterStatus, &t.State.PrintJobState, &t.State.PauseSource,
			&t.Previous.PrinterStatus, &t.Previous.PrintJobState, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning state history: %w", err)
		}
		if t.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at %q: %w", createdAt, err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating state history: %w", err)
	}
	return out, nil
}

// Prune deletes transitions older than olderThan and reports how many went.
func (r *SQLiteRepository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, ErrInvalidRetention
	}
	cutoff := r.now().UTC().Add(-olderThan).Format(time.RFC3339)
	res, err := r.db.ExecContext(ctx, "DELETE FROM state_history WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting state history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}
