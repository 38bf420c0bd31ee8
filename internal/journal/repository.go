// Package journal stores every relay exchange in the exchanges table for
// later inspection through the HTTP API.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shsf-rail/shsf-hub/internal/relay"
)

const (
	defaultLimit = 50
	maxLimit     = 200

	// timeLayout sorts lexically in time order.
	timeLayout = "2006-01-02T15:04:05.000Z07:00"
)

// Entry is one journaled exchange.
type Entry struct {
	ID           string     `json:"id"`
	Sender       string     `json:"sender"`
	Command      string     `json:"command"`
	Response     string     `json:"response,omitempty"`
	Outcome      string     `json:"outcome"`
	Error        string     `json:"error,omitempty"`
	SubmittedAt  time.Time  `json:"submitted_at"`
	DispatchedAt time.Time  `json:"dispatched_at"`
	SettledAt    *time.Time `json:"settled_at,omitempty"`
	LatencyMS    *int64     `json:"latency_ms,omitempty"`
}

// Filter controls which entries List returns.
type Filter struct {
	Sender  string // optional
	Outcome string // optional: answered, timeout, write_failed
	Limit   int    // default 50, max 200
	Offset  int
}

// ListResult is a page of entries, most recent first.
type ListResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// SQLiteRepository reads and writes the exchanges table.
// It satisfies relay.Journal.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a journal on db. Migrations must have run.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// RecordExchange inserts one settled exchange.
func (r *SQLiteRepository) RecordExchange(ctx context.Context, ex relay.Exchange) error {
	var settledAt any
	if !ex.SettledAt.IsZero() {
		settledAt = formatTime(ex.SettledAt)
	}
	var latency any
	if ex.Outcome == relay.OutcomeAnswered {
		latency = ex.Latency().Milliseconds()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO exchanges (id, sender, command, response, outcome, error,
		                        submitted_at, dispatched_at, settled_at, latency_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ex.Command.ID.String(), ex.Command.Sender, ex.Command.Payload,
		nullableString(ex.Response), string(ex.Outcome), nullableString(ex.Err),
		formatTime(ex.Command.SubmittedAt), formatTime(ex.DispatchedAt),
		settledAt, latency,
	)
	if err != nil {
		return fmt.Errorf("inserting exchange: %w", err)
	}
	return nil
}

// List returns entries matching filter, most recently dispatched first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any
	if filter.Sender != "" {
		conditions = append(conditions, "sender = ?")
		args = append(args, filter.Sender)
	}
	if filter.Outcome != "" {
		conditions = append(conditions, "outcome = ?")
		args = append(args, filter.Outcome)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM exchanges %s", where) //nolint:gosec // WHERE built from parameterised conditions
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting exchanges: %w", err)
	}

	query := fmt.Sprintf( //nolint:gosec // WHERE built from parameterised conditions
		`SELECT id, sender, command, response, outcome, error,
		        submitted_at, dispatched_at, settled_at, latency_ms
		 FROM exchanges %s ORDER BY dispatched_at DESC, rowid DESC LIMIT ? OFFSET ?`,
		where,
	)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying exchanges: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating exchanges: %w", err)
	}

	return &ListResult{
		Entries: entries,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var e Entry
	var response, errText, settledAt sql.NullString
	var latency sql.NullInt64
	var submittedAt, dispatchedAt string

	if err := rows.Scan(&e.ID, &e.Sender, &e.Command, &response, &e.Outcome, &errText,
		&submittedAt, &dispatchedAt, &settledAt, &latency); err != nil {
		return Entry{}, fmt.Errorf("scanning exchange: %w", err)
	}

	e.Response = response.String
	e.Error = errText.String

	var err error
	if e.SubmittedAt, err = parseTime(submittedAt); err != nil {
		return Entry{}, err
	}
	if e.DispatchedAt, err = parseTime(dispatchedAt); err != nil {
		return Entry{}, err
	}
	if settledAt.Valid {
		t, err := parseTime(settledAt.String)
		if err != nil {
			return Entry{}, err
		}
		e.SettledAt = &t
	}
	if latency.Valid {
		ms := latency.Int64
		e.LatencyMS = &ms
	}
	return e, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing exchange timestamp %q: %w", s, err)
	}
	return t, nil
}

// nullableString maps "" to NULL.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
