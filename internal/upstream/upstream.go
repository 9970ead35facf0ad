// Package upstream provides HTTP webhook clients for the external
// collaborators the message pipeline depends on: the entitlement
// service, the reply generator and the delivery gateway. Each client
// is a thin JSON-over-POST wrapper around a single endpoint; retry and
// timeout policy live in the caller, not here.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tbourn/go-bot-gateway/internal/domain"
)

// defaultTimeout bounds a single upstream call when the caller did not
// supply a deadline via ctx.
const defaultTimeout = 10 * time.Second

func newClient() *http.Client {
	return &http.Client{Timeout: defaultTimeout}
}

func postJSON(ctx context.Context, c *http.Client, url string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("upstream: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("upstream: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Do(req)
	if err != nil {
		return fmt.Errorf("upstream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain a bounded slice of the body so the error is diagnosable
		// without logging arbitrary payloads.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("upstream: %s returned %d: %s", url, resp.StatusCode, snippet)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("upstream: decode response: %w", err)
	}
	return nil
}

// WebhookEntitlement checks author access against a remote entitlement
// endpoint. It satisfies services.EntitlementOracle.
type WebhookEntitlement struct {
	URL    string
	Client *http.Client
}

// NewWebhookEntitlement returns a client for the given endpoint.
func NewWebhookEntitlement(url string) *WebhookEntitlement {
	return &WebhookEntitlement{URL: url, Client: newClient()}
}

type entitlementRequest struct {
	AuthorID string `json:"author_id"`
}

type entitlementResponse struct {
	Allowed bool `json:"allowed"`
}

// CheckAccess reports whether the author may use the bot.
func (w *WebhookEntitlement) CheckAccess(ctx context.Context, authorID string) (bool, error) {
	var out entitlementResponse
	if err := postJSON(ctx, w.Client, w.URL, entitlementRequest{AuthorID: authorID}, &out); err != nil {
		return false, err
	}
	return out.Allowed, nil
}

// WebhookReplier generates replies via a remote generation endpoint.
// It satisfies services.ReplyOracle.
type WebhookReplier struct {
	URL    string
	Client *http.Client
}

// NewWebhookReplier returns a client for the given endpoint.
func NewWebhookReplier(url string) *WebhookReplier {
	return &WebhookReplier{URL: url, Client: newClient()}
}

type generateRequest struct {
	Question      string `json:"question"`
	SystemContext string `json:"system_context,omitempty"`
}

type generateResponse struct {
	Reply string `json:"reply"`
}

// Generate produces a reply for the given question.
func (w *WebhookReplier) Generate(ctx context.Context, question, systemContext string) (string, error) {
	var out generateResponse
	req := generateRequest{Question: question, SystemContext: systemContext}
	if err := postJSON(ctx, w.Client, w.URL, req, &out); err != nil {
		return "", err
	}
	return out.Reply, nil
}

// WebhookSender delivers outbound chunks through a remote gateway.
// It satisfies services.Sender.
type WebhookSender struct {
	URL    string
	Client *http.Client
}

// NewWebhookSender returns a client for the given endpoint.
func NewWebhookSender(url string) *WebhookSender {
	return &WebhookSender{URL: url, Client: newClient()}
}

type sendRequest struct {
	AuthorID  string `json:"author_id"`
	ChannelID string `json:"channel_id,omitempty"`
	Kind      string `json:"kind"`
	ReplyTo   string `json:"reply_to,omitempty"`
	Text      string `json:"text"`
}

// Reply delivers the first chunk of a response, threaded to the
// originating message.
func (w *WebhookSender) Reply(ctx context.Context, to domain.IncomingMessage, text string) error {
	return postJSON(ctx, w.Client, w.URL, sendRequest{
		AuthorID:  to.AuthorID,
		ChannelID: to.ChannelID,
		Kind:      string(to.Kind),
		ReplyTo:   to.ID,
		Text:      text,
	}, nil)
}

// Send delivers a follow-up chunk without threading.
func (w *WebhookSender) Send(ctx context.Context, to domain.IncomingMessage, text string) error {
	return postJSON(ctx, w.Client, w.URL, sendRequest{
		AuthorID:  to.AuthorID,
		ChannelID: to.ChannelID,
		Kind:      string(to.Kind),
		Text:      text,
	}, nil)
}
