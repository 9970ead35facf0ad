// Message ingestion handler.
//
// This file exposes the single webhook endpoint platform adapters call:
//   - POST /v1/messages  (ingest one chat message into the pipeline)
//
// The handler is transport-thin: it validates and normalizes the payload,
// converts it into a domain.IncomingMessage, and hands it to the pipeline.
// Processing is asynchronous, so the endpoint answers 202 Accepted; every
// user-visible reply is delivered by the pipeline through the platform's
// send primitive, never in this HTTP response.
package handlers

import (
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/go-bot-gateway/internal/domain"
)

// maxTextRunes bounds accepted message text; chat platforms cap their own
// message length well below this.
const maxTextRunes = 4000

// MessageHandler is the pipeline contract the HTTP layer needs.
type MessageHandler interface {
	Handle(msg domain.IncomingMessage)
}

// Handlers bundles the endpoint implementations and their dependencies.
type Handlers struct {
	Pipeline MessageHandler
	Ledger   ViolationStore
}

// New constructs the handler set.
func New(p MessageHandler, ledger ViolationStore) *Handlers {
	return &Handlers{Pipeline: p, Ledger: ledger}
}

//
// DTOs
//

// IngestMessageRequest is the JSON payload adapters post per chat message.
type IngestMessageRequest struct {
	// MessageID is the platform message identifier; generated when absent.
	MessageID string `json:"message_id"`
	// AuthorID identifies the sending user. Required.
	AuthorID string `json:"author_id" binding:"required"`
	// ChannelID is where replies go for channel messages.
	ChannelID string `json:"channel_id"`
	// Kind is "direct" or "channel".
	Kind string `json:"kind" binding:"required,oneof=direct channel"`
	// RequiresMention marks channels where the bot only answers mentions.
	RequiresMention bool `json:"requires_mention"`
	// Mentioned reports whether the adapter saw the bot mentioned.
	Mentioned bool `json:"mentioned"`
	// Text is the raw message content. Required.
	Text string `json:"text" binding:"required,min=1"`
}

// IngestMessageResponse acknowledges an accepted message.
type IngestMessageResponse struct {
	Status    string `json:"status"`
	MessageID string `json:"message_id"`
}

//
// Helpers
//

// nlCollapseRE collapses runs of 3+ newlines to two, preserving paragraphs.
var nlCollapseRE = regexp.MustCompile(`\n{3,}`)

// sanitizeText normalizes message text for consistent downstream behavior:
//   - converts CRLF/CR to LF,
//   - collapses runs of 3+ LFs to exactly two (paragraph separation),
//   - trims surrounding whitespace.
func sanitizeText(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = nlCollapseRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

//
// Handlers
//

// IngestMessage accepts one chat message and enqueues it for processing.
func (h *Handlers) IngestMessage(c *gin.Context) {
	var req IngestMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid message payload")
		return
	}

	text := sanitizeText(req.Text)
	if text == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "text must not be blank")
		return
	}
	if utf8.RuneCountInString(text) > maxTextRunes {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "text too long")
		return
	}

	id := strings.TrimSpace(req.MessageID)
	if id == "" {
		id = uuid.NewString()
	}

	kind := domain.DeliveryDirect
	if req.Kind == "channel" {
		kind = domain.DeliveryChannel
	}

	h.Pipeline.Handle(domain.IncomingMessage{
		ID:              id,
		AuthorID:        req.AuthorID,
		ChannelID:       req.ChannelID,
		Kind:            kind,
		RequiresMention: req.RequiresMention,
		Mentioned:       req.Mentioned,
		Text:            text,
		ReceivedAt:      time.Now().UTC(),
	})

	ok(c, http.StatusAccepted, IngestMessageResponse{
		Status:    "accepted",
		MessageID: id,
	})
}
