package moderation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-bot-gateway/internal/domain"
	"github.com/tbourn/go-bot-gateway/internal/repo"
)

// ----- Fake ledger store -----

type fakeStore struct {
	ledgers map[string]*domain.Ledger

	appends []domain.Violation
	saves   int

	loadErr   error
	saveErr   error
	appendErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{ledgers: map[string]*domain.Ledger{}}
}

func (s *fakeStore) Load(ctx context.Context, authorID string) (*domain.Ledger, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	l, ok := s.ledgers[authorID]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (s *fakeStore) Save(ctx context.Context, l *domain.Ledger) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	cp := *l
	s.ledgers[l.AuthorID] = &cp
	s.saves++
	return nil
}

func (s *fakeStore) Append(ctx context.Context, authorID, terms, rawContent string, occurredAt time.Time) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	s.appends = append(s.appends, domain.Violation{
		AuthorID:   authorID,
		Terms:      terms,
		RawContent: rawContent,
		OccurredAt: occurredAt,
	})
	return nil
}

// ----- Helpers -----

var testSchedule = []time.Duration{5 * time.Minute, 30 * time.Minute, time.Hour}

func newTestEscalator(store LedgerStore, clock *time.Time) *Escalator {
	e := NewEscalator(store, zerolog.Nop(), testSchedule, 5, 0)
	e.now = func() time.Time { return *clock }
	return e
}

func record(t *testing.T, e *Escalator, author string) domain.Outcome {
	t.Helper()
	out, err := e.Record(context.Background(), author, []string{"badword"}, "badword content")
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	return out
}

// ----- Tests -----

func TestRecord_EscalationSchedule(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	e := newTestEscalator(store, &now)

	steps := []struct {
		kind    domain.ActionKind
		timeout time.Duration
	}{
		{domain.ActionWarning, 0},
		{domain.ActionTimeout, 5 * time.Minute},
		{domain.ActionTimeout, 30 * time.Minute},
		{domain.ActionTimeout, time.Hour},
		{domain.ActionBan, 0},
	}
	for i, want := range steps {
		out := record(t, e, "alice")
		if out.Kind != want.kind {
			t.Fatalf("violation %d: kind = %s, want %s", i+1, out.Kind, want.kind)
		}
		if out.Timeout != want.timeout {
			t.Fatalf("violation %d: timeout = %v, want %v", i+1, out.Timeout, want.timeout)
		}
		if out.WarningCount != i+1 {
			t.Fatalf("violation %d: warning count = %d, want %d", i+1, out.WarningCount, i+1)
		}
	}
	if len(store.appends) != 5 {
		t.Fatalf("history rows = %d, want 5", len(store.appends))
	}
}

func TestRecord_PermanentBanWithZeroDuration(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	e := newTestEscalator(store, &now)
	store.ledgers["bob"] = &domain.Ledger{AuthorID: "bob", WarningCount: 4}

	out := record(t, e, "bob")
	if out.Kind != domain.ActionBan || !out.Permanent {
		t.Fatalf("outcome = %+v, want permanent ban", out)
	}
	if !out.Until.After(now.AddDate(99, 0, 0)) {
		t.Fatalf("Until = %v, want far future", out.Until)
	}
}

func TestRecord_TimedBanUsesConfiguredDuration(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	e := NewEscalator(store, zerolog.Nop(), testSchedule, 5, 24*time.Hour)
	e.now = func() time.Time { return now }
	store.ledgers["bob"] = &domain.Ledger{AuthorID: "bob", WarningCount: 4}

	out := record(t, e, "bob")
	if out.Kind != domain.ActionBan || out.Permanent {
		t.Fatalf("outcome = %+v, want timed ban", out)
	}
	if !out.Until.Equal(now.Add(24 * time.Hour)) {
		t.Fatalf("Until = %v, want %v", out.Until, now.Add(24*time.Hour))
	}
}

func TestRecord_ActiveBanDropsWithNoSideEffects(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	e := newTestEscalator(store, &now)

	until := now.Add(time.Hour)
	store.ledgers["eve"] = &domain.Ledger{AuthorID: "eve", WarningCount: 5, BannedUntil: &until}

	out := record(t, e, "eve")
	if out.Kind != domain.ActionDrop {
		t.Fatalf("kind = %s, want drop", out.Kind)
	}
	if len(store.appends) != 0 || store.saves != 0 {
		t.Fatalf("active ban mutated state: appends=%d saves=%d", len(store.appends), store.saves)
	}
}

func TestRecord_LapsedBanResetsToSingleWarning(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	e := newTestEscalator(store, &now)

	past := now.Add(-time.Minute)
	store.ledgers["eve"] = &domain.Ledger{AuthorID: "eve", WarningCount: 5, BannedUntil: &past}

	out := record(t, e, "eve")
	if out.Kind != domain.ActionWarning || !out.PostBan {
		t.Fatalf("outcome = %+v, want post-ban warning", out)
	}
	if out.WarningCount != 1 {
		t.Fatalf("warning count = %d, want 1", out.WarningCount)
	}

	saved := store.ledgers["eve"]
	if saved.WarningCount != 1 {
		t.Fatalf("persisted count = %d, want 1", saved.WarningCount)
	}
	if saved.BannedUntil != nil {
		t.Fatalf("BannedUntil not cleared after reset")
	}
	if len(store.appends) != 1 {
		t.Fatalf("history rows = %d, want 1; history grows even across resets", len(store.appends))
	}

	// The violation after the reset escalates normally again.
	out = record(t, e, "eve")
	if out.Kind != domain.ActionTimeout || out.Timeout != 5*time.Minute {
		t.Fatalf("outcome after reset = %+v, want first timeout", out)
	}
}

func TestRecord_TruncatesStoredContent(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	e := newTestEscalator(store, &now)

	_, err := e.Record(context.Background(), "alice", []string{"badword"}, strings.Repeat("x", 1000))
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if got := len([]rune(store.appends[0].RawContent)); got != maxStoredContent {
		t.Fatalf("stored content = %d runes, want %d", got, maxStoredContent)
	}
}

func TestRecord_StoreErrorsPropagate(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	e := newTestEscalator(store, &now)

	store.loadErr = errors.New("db down")
	if _, err := e.Record(context.Background(), "alice", []string{"t"}, "c"); err == nil {
		t.Fatalf("expected load error")
	}

	store.loadErr = nil
	store.appendErr = errors.New("db down")
	if _, err := e.Record(context.Background(), "alice", []string{"t"}, "c"); err == nil {
		t.Fatalf("expected append error")
	}
}

func TestCurrentlyBanned(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	e := newTestEscalator(store, &now)

	banned, err := e.CurrentlyBanned(context.Background(), "nobody")
	if err != nil || banned {
		t.Fatalf("unknown author: (%v, %v), want (false, nil)", banned, err)
	}

	until := now.Add(time.Hour)
	store.ledgers["eve"] = &domain.Ledger{AuthorID: "eve", BannedUntil: &until}
	banned, err = e.CurrentlyBanned(context.Background(), "eve")
	if err != nil || !banned {
		t.Fatalf("active ban: (%v, %v), want (true, nil)", banned, err)
	}

	past := now.Add(-time.Hour)
	store.ledgers["eve"].BannedUntil = &past
	banned, _ = e.CurrentlyBanned(context.Background(), "eve")
	if banned {
		t.Fatalf("lapsed ban reported as active")
	}
}

func TestTimeoutFor_RepeatsLastEntry(t *testing.T) {
	e := NewEscalator(newFakeStore(), zerolog.Nop(), []time.Duration{5 * time.Minute}, 10, 0)
	if got := e.timeoutFor(2); got != 5*time.Minute {
		t.Fatalf("level 2 = %v", got)
	}
	if got := e.timeoutFor(7); got != 5*time.Minute {
		t.Fatalf("level 7 = %v, want last entry repeated", got)
	}
}
