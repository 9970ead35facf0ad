// Pipeline orchestration.
//
// Handle is the single entry point exposed to platform adapters. It is
// fire-and-forget: every user-visible reply goes out through the Sender, not
// back to the caller. The per-message flow is:
//
//	ban pre-check → rate-limit admission → per-author serialization →
//	entitlement check (retried) → content pre-check / escalation →
//	cache lookup → generation (retried) on miss → content post-check →
//	cache store (happy path only) → chunked transmission
//
// Failures inside one author's serialized task are converted to a generic
// notice and never cross into another author's lane.
package services

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/tbourn/go-bot-gateway/internal/cache"
	"github.com/tbourn/go-bot-gateway/internal/chunk"
	"github.com/tbourn/go-bot-gateway/internal/dispatch"
	"github.com/tbourn/go-bot-gateway/internal/domain"
	"github.com/tbourn/go-bot-gateway/internal/moderation"
	"github.com/tbourn/go-bot-gateway/internal/retry"
	"github.com/tbourn/go-bot-gateway/internal/throttle"
)

// maxLoggedContent caps message text included in log lines.
const maxLoggedContent = 120

// Pipeline composes the processing components into the end-to-end flow.
// All fields must be set; construct with NewPipeline.
type Pipeline struct {
	Limiter    *throttle.Limiter
	Cache      *cache.ReplyCache
	Retry      *retry.Executor
	Filter     *moderation.Filter
	Escalator  *moderation.Escalator
	Serializer *dispatch.Serializer

	Entitlement EntitlementOracle
	Replies     ReplyOracle
	Sender      Sender

	// SystemContext is passed verbatim to the reply oracle with every
	// question (persona and grounding instructions).
	SystemContext string

	// ChunkMaxLen caps each transmitted chunk.
	ChunkMaxLen int

	log zerolog.Logger
	// pacer spaces out follow-up chunk sends to stay under platform send
	// limits. Unrelated to the admission limiter.
	pacer *rate.Limiter
}

// NewPipeline wires the components together. chunkDelay is the minimum gap
// between follow-up chunk sends; zero disables pacing.
func NewPipeline(
	limiter *throttle.Limiter,
	replyCache *cache.ReplyCache,
	exec *retry.Executor,
	filter *moderation.Filter,
	escalator *moderation.Escalator,
	serializer *dispatch.Serializer,
	entitlement EntitlementOracle,
	replies ReplyOracle,
	sender Sender,
	systemContext string,
	chunkMaxLen int,
	chunkDelay time.Duration,
	log zerolog.Logger,
) *Pipeline {
	pacer := rate.NewLimiter(rate.Inf, 1)
	if chunkDelay > 0 {
		pacer = rate.NewLimiter(rate.Every(chunkDelay), 1)
	}
	if chunkMaxLen < 1 {
		chunkMaxLen = chunk.DefaultMaxLen
	}
	return &Pipeline{
		Limiter:       limiter,
		Cache:         replyCache,
		Retry:         exec,
		Filter:        filter,
		Escalator:     escalator,
		Serializer:    serializer,
		Entitlement:   entitlement,
		Replies:       replies,
		Sender:        sender,
		SystemContext: systemContext,
		ChunkMaxLen:   chunkMaxLen,
		log:           log,
		pacer:         pacer,
	}
}

// Handle ingests one message. It performs the cheap synchronous gates (ban,
// rate limit) and enqueues the rest onto the author's serialized lane, then
// returns. Replies are delivered asynchronously through the Sender.
func (p *Pipeline) Handle(msg domain.IncomingMessage) {
	ctx := context.Background()

	if !msg.Addressed() {
		pipelineMsgs.WithLabelValues("ignored").Inc()
		return
	}

	// Step 1: an actively banned author gets nothing, not even an error.
	banned, err := p.Escalator.CurrentlyBanned(ctx, msg.AuthorID)
	if err != nil {
		// Ledger unavailable: log and let the message through; the
		// serialized task hits the store again and fails loudly there.
		p.logErr(msg, "ban_precheck", err)
	}
	if banned {
		pipelineMsgs.WithLabelValues("banned").Inc()
		return
	}

	// Step 2: per-author admission window.
	if !p.Limiter.Allow(msg.AuthorID) {
		pipelineMsgs.WithLabelValues("rate_limited").Inc()
		p.reply(ctx, msg, noticeSlowDown)
		return
	}

	// Step 3: everything else runs on the author's lane, in arrival order.
	p.Serializer.Enqueue(msg.AuthorID, func() {
		p.process(ctx, msg)
	})
}

// process is the serialized part of the flow (steps 4-10). It must not
// return an error: every failure becomes a user notice right here.
func (p *Pipeline) process(ctx context.Context, msg domain.IncomingMessage) {
	tr := otel.Tracer("services/Pipeline")
	ctx, span := tr.Start(ctx, "process",
		trace.WithAttributes(
			attribute.String("author.id", msg.AuthorID),
			attribute.String("message.id", msg.ID),
		),
	)
	defer span.End()

	// Step 4: entitlement gate, before any generation cost is spent.
	entitled, err := retry.Do(ctx, p.Retry, func(ctx context.Context) (bool, error) {
		return p.Entitlement.CheckAccess(ctx, msg.AuthorID)
	})
	if err != nil {
		p.logErr(msg, "entitlement", err)
		pipelineMsgs.WithLabelValues("failed").Inc()
		p.reply(ctx, msg, noticeGenericFailure)
		return
	}
	if !entitled {
		pipelineMsgs.WithLabelValues("access_denied").Inc()
		p.reply(ctx, msg, noticeAccessRequired)
		return
	}

	// Step 5: content pre-check; violations feed the escalator.
	if hits := p.Filter.Scan(msg.Text); len(hits) > 0 {
		out, err := p.Escalator.Record(ctx, msg.AuthorID, hits, msg.Text)
		if err != nil {
			p.logErr(msg, "escalation", err)
			pipelineMsgs.WithLabelValues("failed").Inc()
			p.reply(ctx, msg, noticeGenericFailure)
			return
		}
		pipelineMsgs.WithLabelValues("violation").Inc()
		moderationActions.WithLabelValues(string(out.Kind)).Inc()
		if out.Kind != domain.ActionDrop {
			p.reply(ctx, msg, moderationNotice(out))
		}
		return
	}

	// Step 6: shared cache lookup by normalized question.
	key := cache.Normalize(msg.Text)
	reply, cached := p.Cache.Get(key)
	if cached {
		cacheLookups.WithLabelValues("hit").Inc()
	} else {
		cacheLookups.WithLabelValues("miss").Inc()
	}

	// Step 7: generate on miss; exhausted retries degrade to the apology.
	fallback := false
	if !cached {
		reply, err = retry.Do(ctx, p.Retry, func(ctx context.Context) (string, error) {
			text, err := p.Replies.Generate(ctx, msg.Text, p.SystemContext)
			if err != nil {
				return "", err
			}
			if strings.TrimSpace(text) == "" {
				return "", ErrEmptyReply
			}
			return text, nil
		})
		if err != nil {
			p.logErr(msg, "generation", err)
			fallbackReplies.WithLabelValues("generation_exhausted").Inc()
			reply = apologyFallback
			fallback = true
		}
	}

	// Step 8: the reply passes the same filter as the input. A bad
	// generation is replaced, not punished.
	if hits := p.Filter.Scan(reply); len(hits) > 0 {
		p.log.Warn().
			Str("author_id", msg.AuthorID).
			Strs("terms", hits).
			Msg("generated reply failed content post-check")
		fallbackReplies.WithLabelValues("content_postcheck").Inc()
		reply = safeFallback
		fallback = true
	}

	// Step 9: only happy-path replies are cached; apology and safe-fallback
	// text would poison every later lookup of the same question.
	if !cached && !fallback {
		p.Cache.Put(key, reply)
	}

	// Step 10: chunk and transmit.
	p.transmit(ctx, msg, reply)
	pipelineMsgs.WithLabelValues("answered").Inc()
}

// transmit splits reply and sends the chunks in order: the first as a direct
// reply to the triggering message, the rest as paced follow-ups.
func (p *Pipeline) transmit(ctx context.Context, msg domain.IncomingMessage, reply string) {
	chunks := chunk.Split(reply, p.ChunkMaxLen)
	for i, c := range chunks {
		if i == 0 {
			if err := p.Sender.Reply(ctx, msg, c); err != nil {
				p.logErr(msg, "send", err)
				return
			}
			chunksSent.Inc()
			continue
		}
		if err := p.pacer.Wait(ctx); err != nil {
			return
		}
		if err := p.Sender.Send(ctx, msg, c); err != nil {
			p.logErr(msg, "send", err)
			return
		}
		chunksSent.Inc()
	}
}

// reply sends a single short notice, logging (not surfacing) send failures.
func (p *Pipeline) reply(ctx context.Context, msg domain.IncomingMessage, text string) {
	if err := p.Sender.Reply(ctx, msg, text); err != nil {
		p.logErr(msg, "send", err)
	}
}

// logErr records a stage failure with enough context to debug without
// leaking message content wholesale.
func (p *Pipeline) logErr(msg domain.IncomingMessage, stage string, err error) {
	p.log.Error().
		Err(err).
		Str("stage", stage).
		Str("author_id", msg.AuthorID).
		Str("content", truncateForLog(msg.Text)).
		Msg("pipeline stage failed")
}

// moderationNotice renders the user-facing text for an escalation outcome.
func moderationNotice(out domain.Outcome) string {
	switch out.Kind {
	case domain.ActionWarning:
		if out.PostBan {
			return "Your ban has expired, but that message broke the rules. Consider this a fresh warning."
		}
		return "That message isn't allowed here. This is a warning; repeated violations lead to timeouts and a ban."
	case domain.ActionTimeout:
		return fmt.Sprintf("That message isn't allowed. You're timed out for %s.", formatDuration(out.Timeout))
	case domain.ActionBan:
		if out.Permanent {
			return "Repeated violations: you are permanently banned."
		}
		return fmt.Sprintf("Repeated violations: you are banned until %s.", out.Until.Format(time.RFC1123))
	default:
		return ""
	}
}

// formatDuration renders durations the way users expect ("5m", "1h30m"
// become "5 minutes", "1h30m0s" style is avoided for round values).
func formatDuration(d time.Duration) string {
	if d >= time.Hour && d%time.Hour == 0 {
		h := int(d / time.Hour)
		if h == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", h)
	}
	if d >= time.Minute && d%time.Minute == 0 {
		m := int(d / time.Minute)
		if m == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", m)
	}
	return d.String()
}

// truncateForLog clips content for log lines.
func truncateForLog(s string) string {
	if utf8.RuneCountInString(s) <= maxLoggedContent {
		return s
	}
	return string([]rune(s)[:maxLoggedContent]) + "…"
}
