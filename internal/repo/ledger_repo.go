// Package repo implements the persistence layer for the violation ledger,
// backed by GORM. This file provides repository functions for the Ledger and
// Violation models.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no escalation logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - GetLedger returns ErrNotFound when an author has no ledger yet. The
//     caller treats "no record" differently from a ledger with zero
//     violations, so the sentinel must not be swallowed.
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-bot-gateway/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer.
var ErrNotFound = gorm.ErrRecordNotFound

// Store bundles the ledger functions with a DB handle so consumers can
// depend on a narrow interface instead of *gorm.DB.
type Store struct {
	DB *gorm.DB
}

// Load proxies GetLedger.
func (s *Store) Load(ctx context.Context, authorID string) (*domain.Ledger, error) {
	return GetLedger(ctx, s.DB, authorID)
}

// Save proxies SaveLedger.
func (s *Store) Save(ctx context.Context, l *domain.Ledger) error {
	return SaveLedger(ctx, s.DB, l)
}

// Append proxies AppendViolation.
func (s *Store) Append(ctx context.Context, authorID, terms, rawContent string, occurredAt time.Time) error {
	_, err := AppendViolation(ctx, s.DB, authorID, terms, rawContent, occurredAt)
	return err
}

// List proxies ListViolations.
func (s *Store) List(ctx context.Context, authorID string) ([]domain.Violation, error) {
	return ListViolations(ctx, s.DB, authorID)
}

// Count proxies CountViolations.
func (s *Store) Count(ctx context.Context, authorID string) (int64, error) {
	return CountViolations(ctx, s.DB, authorID)
}

// GetLedger fetches the violation ledger for authorID, history excluded.
// If the author has no ledger yet, it returns ErrNotFound.
func GetLedger(ctx context.Context, db *gorm.DB, authorID string) (*domain.Ledger, error) {
	var l domain.Ledger
	err := db.WithContext(ctx).
		Where("author_id = ?", authorID).
		First(&l).Error
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// SaveLedger inserts or updates the ledger row for l.AuthorID. History rows
// are persisted separately through AppendViolation; only the counters and ban
// expiry live on the ledger itself.
func SaveLedger(ctx context.Context, db *gorm.DB, l *domain.Ledger) error {
	return db.WithContext(ctx).
		Session(&gorm.Session{FullSaveAssociations: false}).
		Omit("History").
		Save(l).Error
}

// AppendViolation records one violation for authorID. Rows are append-only;
// nothing ever deletes them.
func AppendViolation(ctx context.Context, db *gorm.DB, authorID, terms, rawContent string, occurredAt time.Time) (*domain.Violation, error) {
	v := &domain.Violation{
		ID:         uuid.NewString(),
		AuthorID:   authorID,
		Terms:      terms,
		RawContent: rawContent,
		OccurredAt: occurredAt.UTC(),
		CreatedAt:  time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(v).Error; err != nil {
		return nil, err
	}
	return v, nil
}

// ListViolations returns the violation history for authorID in occurrence
// order, for moderation review surfaces. It returns an empty slice when the
// author has no recorded violations.
func ListViolations(ctx context.Context, db *gorm.DB, authorID string) ([]domain.Violation, error) {
	var out []domain.Violation
	err := db.WithContext(ctx).
		Where("author_id = ?", authorID).
		Order("occurred_at asc").
		Find(&out).Error
	return out, err
}

// CountViolations returns the total number of recorded violations for
// authorID.
func CountViolations(ctx context.Context, db *gorm.DB, authorID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Violation{}).
		Where("author_id = ?", authorID).
		Count(&total).Error
	return total, err
}
