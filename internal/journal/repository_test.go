package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shsf-rail/shsf-hub/internal/infrastructure/config"
	"github.com/shsf-rail/shsf-hub/internal/infrastructure/database"
	"github.com/shsf-rail/shsf-hub/internal/relay"
	"github.com/shsf-rail/shsf-hub/migrations"
)

func setupRepo(t *testing.T) *SQLiteRepository {
	t.Helper()

	db, err := database.Open(config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "journal.db"),
		BusyTimeout: 1,
	})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewSQLiteRepository(db.DB)
}

func exchange(sender, payload string, outcome relay.Outcome, at time.Time) relay.Exchange {
	ex := relay.Exchange{
		Command: relay.Command{
			ID:          uuid.New(),
			Payload:     payload,
			Sender:      sender,
			SubmittedAt: at.Add(-5 * time.Millisecond),
		},
		Outcome:      outcome,
		DispatchedAt: at,
		SettledAt:    at.Add(40 * time.Millisecond),
	}
	switch outcome {
	case relay.OutcomeAnswered:
		ex.Response = "OK"
	case relay.OutcomeWriteFailed:
		ex.Err = "att error"
	}
	return ex
}

func TestRecordExchange_RoundTrip(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	at := time.Date(2026, 10, 3, 9, 0, 0, 0, time.UTC)

	ex := exchange("alice", "h", relay.OutcomeAnswered, at)
	if err := repo.RecordExchange(ctx, ex); err != nil {
		t.Fatalf("RecordExchange() error = %v", err)
	}

	res, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Total != 1 || len(res.Entries) != 1 {
		t.Fatalf("List() total = %d entries = %d, want 1", res.Total, len(res.Entries))
	}

	e := res.Entries[0]
	if e.ID != ex.Command.ID.String() {
		t.Errorf("ID = %q, want %q", e.ID, ex.Command.ID)
	}
	if e.Sender != "alice" || e.Command != "h" || e.Response != "OK" || e.Outcome != "answered" {
		t.Errorf("entry = %+v", e)
	}
	if !e.DispatchedAt.Equal(at) {
		t.Errorf("DispatchedAt = %v, want %v", e.DispatchedAt, at)
	}
	if e.SettledAt == nil || !e.SettledAt.Equal(at.Add(40*time.Millisecond)) {
		t.Errorf("SettledAt = %v, want dispatch + 40ms", e.SettledAt)
	}
	if e.LatencyMS == nil || *e.LatencyMS != 40 {
		t.Errorf("LatencyMS = %v, want 40", e.LatencyMS)
	}
}

func TestRecordExchange_WriteFailure(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	ex := exchange("hub", "ba o", relay.OutcomeWriteFailed, time.Now())
	if err := repo.RecordExchange(ctx, ex); err != nil {
		t.Fatalf("RecordExchange() error = %v", err)
	}

	res, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	e := res.Entries[0]
	if e.Error != "att error" {
		t.Errorf("Error = %q, want att error", e.Error)
	}
	if e.Response != "" {
		t.Errorf("Response = %q, want empty", e.Response)
	}
	if e.LatencyMS != nil {
		t.Errorf("LatencyMS = %d, want nil for failed write", *e.LatencyMS)
	}
}

func TestList_FilterAndOrder(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 3, 9, 0, 0, 0, time.UTC)

	seed := []relay.Exchange{
		exchange("alice", "h", relay.OutcomeAnswered, base),
		exchange("bob", "h", relay.OutcomeTimeout, base.Add(time.Second)),
		exchange("alice", "ba o", relay.OutcomeTimeout, base.Add(2*time.Second)),
		exchange("hub", "h", relay.OutcomeAnswered, base.Add(3*time.Second)),
	}
	for _, ex := range seed {
		if err := repo.RecordExchange(ctx, ex); err != nil {
			t.Fatalf("RecordExchange() error = %v", err)
		}
	}

	tests := []struct {
		name         string
		filter       Filter
		wantTotal    int
		wantCommands []string
	}{
		{name: "all newest first", filter: Filter{}, wantTotal: 4, wantCommands: []string{"h", "ba o", "h", "h"}},
		{name: "by sender", filter: Filter{Sender: "alice"}, wantTotal: 2, wantCommands: []string{"ba o", "h"}},
		{name: "by outcome", filter: Filter{Outcome: "timeout"}, wantTotal: 2, wantCommands: []string{"ba o", "h"}},
		{name: "sender and outcome", filter: Filter{Sender: "alice", Outcome: "answered"}, wantTotal: 1, wantCommands: []string{"h"}},
		{name: "paged", filter: Filter{Limit: 1, Offset: 1}, wantTotal: 4, wantCommands: []string{"ba o"}},
		{name: "no match", filter: Filter{Sender: "carol"}, wantTotal: 0, wantCommands: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if res.Total != tt.wantTotal {
				t.Errorf("Total = %d, want %d", res.Total, tt.wantTotal)
			}
			if len(res.Entries) != len(tt.wantCommands) {
				t.Fatalf("entries = %d, want %d", len(res.Entries), len(tt.wantCommands))
			}
			for i, want := range tt.wantCommands {
				if res.Entries[i].Command != want {
					t.Errorf("entry[%d].Command = %q, want %q", i, res.Entries[i].Command, want)
				}
			}
		})
	}
}

func TestList_ClampsLimit(t *testing.T) {
	repo := setupRepo(t)

	res, err := repo.List(context.Background(), Filter{Limit: 1000, Offset: -3})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Limit != maxLimit {
		t.Errorf("Limit = %d, want %d", res.Limit, maxLimit)
	}
	if res.Offset != 0 {
		t.Errorf("Offset = %d, want 0", res.Offset)
	}
	if res.Entries == nil {
		t.Error("Entries = nil, want empty slice")
	}
}
