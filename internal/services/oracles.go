// Package services contains the message pipeline: the orchestrator composing
// rate limiting, moderation, caching, retries, chunking, and per-author
// serialization into the end-to-end flow, plus the background maintenance
// sweeper. This file defines the narrow contracts to the external
// collaborators the core depends on.
package services

import (
	"context"

	"github.com/tbourn/go-bot-gateway/internal/domain"
)

// EntitlementOracle answers whether an author may use the bot at all
// (subscription, server role, allowlist; the pipeline does not care which).
// Calls may fail transiently and are wrapped in the retry executor.
type EntitlementOracle interface {
	CheckAccess(ctx context.Context, authorID string) (bool, error)
}

// ReplyOracle generates the assistant reply for a question. Calls may fail
// transiently or return empty text; the pipeline treats an empty reply as a
// failure for retry purposes.
type ReplyOracle interface {
	Generate(ctx context.Context, question, systemContext string) (string, error)
}

// Sender is the platform adapter's transmission primitive. Reply answers the
// triggering message directly (threaded reply where the platform supports
// it); Send delivers an independent follow-up to the same destination.
type Sender interface {
	Reply(ctx context.Context, to domain.IncomingMessage, text string) error
	Send(ctx context.Context, to domain.IncomingMessage, text string) error
}
