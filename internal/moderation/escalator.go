// Escalation state machine.
//
// Each author carries a persisted violation ledger. Every confirmed violation
// moves the author one step along the schedule: warning, then increasingly
// long timeouts, then a ban once the warning count reaches the configured
// threshold. While a ban is active the author's messages are dropped with no
// side effects at all; once a ban lapses, the next violation restarts the
// schedule at a single post-ban warning instead of escalating further.
package moderation

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-bot-gateway/internal/domain"
	"github.com/tbourn/go-bot-gateway/internal/repo"
)

// maxStoredContent caps the raw content persisted with a violation record.
const maxStoredContent = 256

// permanentBanYears models a permanent ban as a far-future expiry, keeping
// the "banned iff expiry is in the future" rule uniform.
const permanentBanYears = 100

// LedgerStore is the persistence contract the escalator needs. Load must
// return repo.ErrNotFound for an author with no record yet; that case is
// distinct from a ledger with zero violations.
type LedgerStore interface {
	Load(ctx context.Context, authorID string) (*domain.Ledger, error)
	Save(ctx context.Context, l *domain.Ledger) error
	Append(ctx context.Context, authorID, terms, rawContent string, occurredAt time.Time) error
}

// Escalator applies the escalation schedule to violation events. It holds no
// per-author state of its own; everything lives in the store, and the
// pipeline's per-author serialization guarantees Record never races with
// itself for one author.
type Escalator struct {
	store LedgerStore
	log   zerolog.Logger

	// timeouts[i] is the mute for warning level i+2; the last entry repeats
	// for every level up to the ban threshold.
	timeouts     []time.Duration
	banThreshold int
	banDuration  time.Duration // 0 means permanent

	now func() time.Time
}

// NewEscalator constructs an Escalator over store with the given schedule.
// timeouts must be non-empty; banThreshold is the warning count at which a
// ban is issued; banDuration 0 bans permanently.
func NewEscalator(store LedgerStore, log zerolog.Logger, timeouts []time.Duration, banThreshold int, banDuration time.Duration) *Escalator {
	if len(timeouts) == 0 {
		timeouts = []time.Duration{5 * time.Minute, 30 * time.Minute, time.Hour}
	}
	if banThreshold < 2 {
		banThreshold = 5
	}
	return &Escalator{
		store:        store,
		log:          log,
		timeouts:     timeouts,
		banThreshold: banThreshold,
		banDuration:  banDuration,
		now:          time.Now,
	}
}

// CurrentlyBanned reports whether authorID has an active ban. Used by the
// pipeline's cheap pre-queue check; an absent ledger means not banned.
func (e *Escalator) CurrentlyBanned(ctx context.Context, authorID string) (bool, error) {
	l, err := e.store.Load(ctx, authorID)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return l.Banned(e.now()), nil
}

// Record applies one violation for authorID and returns the resulting
// moderation outcome.
//
// Transition order matters:
//  1. An active ban means the message is dropped silently. Nothing is
//     persisted; this is the only branch with no side effect.
//  2. A lapsed ban resets the warning count to 1, clears the ban expiry so
//     later violations escalate normally again, appends to history, and
//     yields the post-ban warning. History is never cleared.
//  3. Otherwise the count increments, the violation is appended, and the
//     outcome follows the schedule: level 1 warns, levels up to the ban
//     threshold time out with increasing durations, and the threshold bans.
func (e *Escalator) Record(ctx context.Context, authorID string, terms []string, rawContent string) (domain.Outcome, error) {
	now := e.now()

	l, err := e.store.Load(ctx, authorID)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		l = &domain.Ledger{AuthorID: authorID, CreatedAt: now.UTC()}
	case err != nil:
		return domain.Outcome{}, err
	}

	if l.Banned(now) {
		return domain.Outcome{Kind: domain.ActionDrop, WarningCount: l.WarningCount}, nil
	}

	joined := strings.Join(terms, ",")
	content := truncate(rawContent, maxStoredContent)

	if l.BanLapsed(now) {
		l.WarningCount = 1
		l.BannedUntil = nil
		if err := e.persist(ctx, l, joined, content, now); err != nil {
			return domain.Outcome{}, err
		}
		e.log.Info().Str("author_id", authorID).Msg("post-ban warning issued")
		return domain.Outcome{Kind: domain.ActionWarning, PostBan: true, WarningCount: 1}, nil
	}

	l.WarningCount++

	out := domain.Outcome{WarningCount: l.WarningCount}
	switch {
	case l.WarningCount >= e.banThreshold:
		until := now.AddDate(permanentBanYears, 0, 0)
		if e.banDuration > 0 {
			until = now.Add(e.banDuration)
		} else {
			out.Permanent = true
		}
		until = until.UTC()
		l.BannedUntil = &until
		out.Kind = domain.ActionBan
		out.Until = until
	case l.WarningCount == 1:
		out.Kind = domain.ActionWarning
	default:
		out.Kind = domain.ActionTimeout
		out.Timeout = e.timeoutFor(l.WarningCount)
	}

	if err := e.persist(ctx, l, joined, content, now); err != nil {
		return domain.Outcome{}, err
	}

	e.log.Info().
		Str("author_id", authorID).
		Str("action", string(out.Kind)).
		Int("warning_count", l.WarningCount).
		Str("terms", joined).
		Msg("violation recorded")
	return out, nil
}

// timeoutFor maps a warning level (>= 2) onto the timeout table, repeating
// the last entry for levels beyond it.
func (e *Escalator) timeoutFor(level int) time.Duration {
	idx := level - 2
	if idx >= len(e.timeouts) {
		idx = len(e.timeouts) - 1
	}
	return e.timeouts[idx]
}

// persist saves the ledger counters, then appends the violation. The ledger
// row must exist first: violations carry a foreign key to it, and on an
// author's first violation there is no row yet.
func (e *Escalator) persist(ctx context.Context, l *domain.Ledger, terms, content string, now time.Time) error {
	if err := e.store.Save(ctx, l); err != nil {
		return err
	}
	return e.store.Append(ctx, l.AuthorID, terms, content, now)
}

// truncate clips s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
