// Package handlers provides HTTP handler implementations for the webhook
// surface. This file implements the platform webhook endpoint: the subscribe
// handshake (GET) and event delivery (POST).
package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/finchat/go-finance-bot/internal/http/middleware"
	"github.com/finchat/go-finance-bot/internal/services"
	"github.com/finchat/go-finance-bot/internal/signature"
)

// SignatureHeader carries the HMAC-SHA256 of the raw delivery body.
const SignatureHeader = "X-Signature"

// WebhookHandler serves the platform webhook endpoint.
type WebhookHandler struct {
	Secret      string // HMAC key for delivery payloads
	VerifyToken string // shared token for the subscribe handshake
	Inbound     *services.InboundService
}

// webhookEnvelope mirrors the platform delivery payload: entries × changes ×
// messages, possibly spanning multiple conversation threads. Only text
// messages are processed; everything else is ignored.
type webhookEnvelope struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Field string `json:"field"`
			Value struct {
				Messages []inboundEvent `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// inboundEvent is one message event inside the envelope.
type inboundEvent struct {
	ID   string `json:"id"`
	From string `json:"from"`
	Type string `json:"type"`
	Text struct {
		Body string `json:"body"`
	} `json:"text"`
}

// Verify handles the subscribe handshake.
//
// GET /webhook?mode=subscribe&verify_token=...&challenge=...
//
// Responds 200 with the raw challenge iff mode is "subscribe" and the token
// matches; 403 otherwise. The platform's "hub."-prefixed parameter spelling
// is accepted as well.
func (h *WebhookHandler) Verify(c *gin.Context) {
	mode := queryEither(c, "mode")
	token := queryEither(c, "verify_token")
	challenge := queryEither(c, "challenge")

	if mode == "subscribe" && token != "" && token == h.VerifyToken {
		c.String(http.StatusOK, challenge)
		return
	}
	fail(c, http.StatusForbidden, ErrCodeBadHandshake, "webhook verification failed")
}

// Receive handles event delivery.
//
// POST /webhook
//
// The signature is verified over the byte-exact raw body before any parsing;
// failure means 401 and no further work. On success the handler acknowledges
// immediately and hands each text message to asynchronous processing — the
// response never waits on model calls, sends, or database writes.
func (h *WebhookHandler) Receive(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unreadable request body")
		return
	}

	if !signature.Valid(h.Secret, body, c.GetHeader(SignatureHeader)) {
		middleware.LoggerFrom(c).Warn().Msg("webhook signature rejected")
		fail(c, http.StatusUnauthorized, ErrCodeBadSignature, "signature verification failed")
		return
	}

	var env webhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		// Authenticated but unparseable: ack so the platform stops retrying a
		// payload that will never parse.
		middleware.LoggerFrom(c).Warn().Err(err).Msg("webhook payload not parseable")
		ok(c, http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	now := time.Now().UTC()
	dispatched := 0
	for _, entry := range env.Entry {
		for _, change := range entry.Changes {
			for _, msg := range change.Value.Messages {
				if msg.Type != "text" || msg.ID == "" || msg.From == "" {
					continue
				}
				h.Inbound.Dispatch(services.InboundMessage{
					PlatformMsgID: msg.ID,
					SenderID:      msg.From,
					Text:          msg.Text.Body,
					ReceivedAt:    now,
				})
				dispatched++
			}
		}
	}

	middleware.LoggerFrom(c).Info().Int("messages", dispatched).Msg("webhook delivery accepted")
	ok(c, http.StatusOK, gin.H{"status": "accepted", "messages": dispatched})
}

// queryEither reads a query parameter by its bare name or the platform's
// "hub."-prefixed spelling.
func queryEither(c *gin.Context, name string) string {
	if v := c.Query(name); v != "" {
		return v
	}
	return c.Query("hub." + name)
}
