// Package handlers defines HTTP-layer error codes used by the ingestion API.
//
// Codes are lowercase snake_case and mirror common HTTP status semantics so
// platform adapters can branch on them programmatically. Handlers select the
// most specific matching code and pass it to fail() with the corresponding
// status and message.
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)
