// Pipeline error values and user-facing notice text.
//
// The sentinel errors are internal to the service layer. The notices are the
// only strings the end user ever sees on a failure path; raw upstream errors
// stay in the logs.
package services

import "errors"

// ErrEmptyReply is returned by the generation wrapper when the oracle
// produced no usable text; it makes empty output retryable like any
// other failure.
var ErrEmptyReply = errors.New("reply generation returned empty text")

// User-facing notices. Kept short and platform-neutral; the adapter may
// decorate them (mentions, embeds) as it sees fit.
const (
	// noticeSlowDown answers a rate-limited author.
	noticeSlowDown = "You're sending messages a little too fast. Give it a minute and try again."

	// noticeAccessRequired answers an author the entitlement oracle rejected.
	noticeAccessRequired = "You don't have access to the assistant yet. Check the subscription page to get started."

	// noticeGenericFailure is the only thing a user sees on an internal error.
	noticeGenericFailure = "Something went wrong on our side. Please try again shortly."

	// apologyFallback replaces a reply after generation retries are spent.
	// Never cached, so the next ask gets a fresh attempt.
	apologyFallback = "Sorry, I couldn't come up with an answer right now. Please try asking again in a moment."

	// safeFallback replaces a generated reply that failed the content
	// post-check. The author is not penalized for a bad generation.
	safeFallback = "I had an answer, but it didn't pass our content checks, so I'm keeping it to myself. Try rephrasing your question."
)
