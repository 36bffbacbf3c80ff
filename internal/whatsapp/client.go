// Package whatsapp implements the outbound side of the WhatsApp Cloud API:
// sending a text reply to a platform sender identifier.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/finchat/go-finance-bot/internal/config"
)

// Client talks to the Cloud API send endpoint. It is safe for concurrent
// use; the embedded http.Client enforces the configured send timeout.
type Client struct {
	http    *http.Client
	baseURL string
	token   string
	phoneID string
}

// New builds a Client from platform configuration.
func New(cfg config.PlatformConfig) *Client {
	return &Client{
		http:    &http.Client{Timeout: cfg.SendTimeout},
		baseURL: strings.TrimRight(cfg.APIBase, "/"),
		token:   cfg.Token,
		phoneID: cfg.PhoneID,
	}
}

type textPayload struct {
	MessagingProduct string `json:"messaging_product"`
	To               string `json:"to"`
	Type             string `json:"type"`
	Text             struct {
		Body string `json:"body"`
	} `json:"text"`
}

// SendText delivers a text message to the given sender identifier. A
// non-2xx response is returned as an error; the caller logs it and does not
// roll back state that was already committed.
func (c *Client) SendText(ctx context.Context, to, text string) error {
	p := textPayload{MessagingProduct: "whatsapp", To: to, Type: "text"}
	p.Text.Body = text

	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode send payload: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.baseURL, c.phoneID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build send request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("send message: platform returned %d: %s", resp.StatusCode, string(snippet))
	}

	log.Debug().
		Str("to", to).
		Dur("latency", time.Since(start)).
		Msg("outbound message delivered")
	return nil
}
