// Package domain defines the core types flowing through the message
// pipeline: inbound chat messages, the per-author violation ledger that
// drives moderation escalation, and the moderation outcomes themselves.
// Ledger and Violation are mapped with GORM and survive process restarts;
// everything else lives only for the duration of one message.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// DeliveryKind distinguishes how a message reached the bot.
type DeliveryKind string

const (
	// DeliveryDirect is a private/direct message to the bot.
	DeliveryDirect DeliveryKind = "direct"
	// DeliveryChannel is a message in a shared channel.
	DeliveryChannel DeliveryKind = "channel"
)

// IncomingMessage is one inbound chat message as handed over by a platform
// adapter. It is immutable: created at ingestion, discarded after processing.
type IncomingMessage struct {
	// ID is the platform message identifier, used for reply threading.
	ID string
	// AuthorID keys rate limiting, moderation, and serialization.
	AuthorID string
	// ChannelID is the destination for replies (empty for direct messages).
	ChannelID string
	// Kind says whether this arrived as a DM or a channel message.
	Kind DeliveryKind
	// RequiresMention marks channel messages that should only be handled
	// when the bot was explicitly mentioned.
	RequiresMention bool
	// Mentioned reports whether the adapter saw a mention of the bot.
	Mentioned bool
	// Text is the raw message content.
	Text string
	// ReceivedAt is the ingestion timestamp.
	ReceivedAt time.Time
}

// Addressed reports whether the message is actually directed at the bot.
// Direct messages always are; channel messages honor RequiresMention.
func (m IncomingMessage) Addressed() bool {
	if m.Kind == DeliveryDirect {
		return true
	}
	return !m.RequiresMention || m.Mentioned
}

// Ledger is the persisted moderation record for one author. It is created on
// the author's first violation and never deleted; WarningCount and
// BannedUntil mutate through the escalation state machine, History only grows.
//
// BannedUntil semantics:
//   - nil: the author has never been banned (the "not banned" sentinel).
//   - in the future: the author is currently banned.
//   - in the past: a previous ban has lapsed; the next violation resets
//     WarningCount to 1 instead of escalating further.
type Ledger struct {
	AuthorID     string         `json:"author_id"     gorm:"type:varchar(64);primaryKey"`
	WarningCount int            `json:"warning_count" gorm:"not null;default:0"`
	BannedUntil  *time.Time     `json:"banned_until,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `json:"-" gorm:"index"`

	// History holds every recorded violation, oldest first.
	History []Violation `json:"history,omitempty" gorm:"foreignKey:AuthorID;references:AuthorID"`
}

// TableName returns the database table name for Ledger.
func (Ledger) TableName() string { return "ledgers" }

// Banned reports whether the author is banned as of now.
func (l *Ledger) Banned(now time.Time) bool {
	return l.BannedUntil != nil && l.BannedUntil.After(now)
}

// BanLapsed reports whether a previous ban has expired. A never-banned
// author is not "lapsed"; the distinction matters for the reset transition.
func (l *Ledger) BanLapsed(now time.Time) bool {
	return l.BannedUntil != nil && !l.BannedUntil.After(now)
}

// Violation is one recorded content violation. Rows are append-only.
type Violation struct {
	ID         string         `json:"id"          gorm:"type:char(36);primaryKey"`
	AuthorID   string         `json:"author_id"   gorm:"type:varchar(64);not null;index:idx_author_violations,priority:1"`
	Terms      string         `json:"terms"       gorm:"type:varchar(255);not null"` // comma-joined offending terms
	RawContent string         `json:"raw_content" gorm:"type:text;not null"`
	OccurredAt time.Time      `json:"occurred_at" gorm:"index:idx_author_violations,priority:2"`
	CreatedAt  time.Time      `json:"created_at"`
	DeletedAt  gorm.DeletedAt `json:"-" gorm:"index"`
}

// TableName returns the database table name for Violation.
func (Violation) TableName() string { return "violations" }

// ActionKind enumerates the possible moderation outcomes for a violation.
type ActionKind string

const (
	// ActionWarning is a plain warning (first strike, or post-ban reset).
	ActionWarning ActionKind = "warning"
	// ActionTimeout is a temporary mute of Outcome.Timeout length.
	ActionTimeout ActionKind = "timeout"
	// ActionBan bans the author until Outcome.Until.
	ActionBan ActionKind = "ban"
	// ActionDrop means the author is currently banned: the message is
	// silently discarded and nothing is recorded.
	ActionDrop ActionKind = "drop"
)

// Outcome is the decision produced by the escalation state machine for a
// single violation.
type Outcome struct {
	Kind ActionKind
	// Timeout is the mute duration for ActionTimeout.
	Timeout time.Duration
	// Until is the ban expiry for ActionBan.
	Until time.Time
	// Permanent marks a ban with no configured duration.
	Permanent bool
	// PostBan marks the warning issued on the first violation after a
	// lapsed ban.
	PostBan bool
	// WarningCount is the ledger count after this violation was applied.
	WarningCount int
}
