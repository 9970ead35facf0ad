// Moderation review handler.
//
// This file exposes the audit endpoint moderators use to inspect an author's
// violation ledger:
//   - GET /v1/authors/{author_id}/violations
//
// Read-only; mutations happen exclusively through the escalation state
// machine inside the pipeline.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-bot-gateway/internal/domain"
	"github.com/tbourn/go-bot-gateway/internal/repo"
)

// ViolationStore is the ledger audit contract the review endpoint needs.
// Load must return repo.ErrNotFound for an author with no record.
type ViolationStore interface {
	Load(ctx context.Context, authorID string) (*domain.Ledger, error)
	List(ctx context.Context, authorID string) ([]domain.Violation, error)
	Count(ctx context.Context, authorID string) (int64, error)
}

// ViolationRecord is one history entry in the review response.
type ViolationRecord struct {
	ID         string    `json:"id"`
	Terms      string    `json:"terms"`
	OccurredAt time.Time `json:"occurred_at"`
}

// AuthorViolationsResponse summarizes an author's moderation state.
type AuthorViolationsResponse struct {
	AuthorID     string            `json:"author_id"`
	WarningCount int               `json:"warning_count"`
	Banned       bool              `json:"banned"`
	BannedUntil  *time.Time        `json:"banned_until,omitempty"`
	Total        int64             `json:"total"`
	Violations   []ViolationRecord `json:"violations"`
}

// ListAuthorViolations returns the violation ledger for one author, oldest
// first. Raw message content stays out of the response; it is persisted for
// escalation review tooling, not exposed over this endpoint.
func (h *Handlers) ListAuthorViolations(c *gin.Context) {
	authorID := strings.TrimSpace(c.Param("author_id"))
	if authorID == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "author_id required")
		return
	}
	ctx := c.Request.Context()

	l, err := h.Ledger.Load(ctx, authorID)
	if errors.Is(err, repo.ErrNotFound) {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "author has no moderation record")
		return
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "ledger lookup failed")
		return
	}

	items, err := h.Ledger.List(ctx, authorID)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "violation lookup failed")
		return
	}
	total, err := h.Ledger.Count(ctx, authorID)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "violation count failed")
		return
	}

	records := make([]ViolationRecord, 0, len(items))
	for _, v := range items {
		records = append(records, ViolationRecord{
			ID:         v.ID,
			Terms:      v.Terms,
			OccurredAt: v.OccurredAt,
		})
	}

	ok(c, http.StatusOK, AuthorViolationsResponse{
		AuthorID:     authorID,
		WarningCount: l.WarningCount,
		Banned:       l.Banned(time.Now()),
		BannedUntil:  l.BannedUntil,
		Total:        total,
		Violations:   records,
	})
}
