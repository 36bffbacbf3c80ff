// Package agent drives the tool-calling loop against the Anthropic Messages
// API: it assembles the model context from the profile and the bounded
// conversation history, lets the model request domain tools, executes them,
// feeds results back, and stops at a plain-text reply or the iteration cap.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/finchat/go-finance-bot/internal/domain"
)

// FallbackReply is returned when the loop hits its iteration cap or the
// model produces an empty final message. Deterministic on purpose: a
// well-behaved model should never reach it.
const FallbackReply = "Sorry, I couldn't finish that request. Please try again."

// ModelClient abstracts the Messages endpoint so the loop can be tested
// against a fake.
type ModelClient interface {
	CreateMessage(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error)
}

// AnthropicClient is the production ModelClient backed by the official SDK.
type AnthropicClient struct {
	client anthropic.Client
}

// NewAnthropicClient builds a client authenticated with the given API key.
func NewAnthropicClient(apiKey string) *AnthropicClient {
	return &AnthropicClient{client: anthropic.NewClient(option.WithAPIKey(apiKey))}
}

// CreateMessage proxies anthropic.Client.Messages.New.
func (a *AnthropicClient) CreateMessage(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	return a.client.Messages.New(ctx, params)
}

// Reply is the final outcome of one orchestrator run. Action carries the
// action_result recorded on the stored assistant turn.
type Reply struct {
	Text   string
	Action string
}

// Orchestrator runs the bounded tool-calling loop. All dependencies are
// injected; nothing here is process-global.
type Orchestrator struct {
	Model ModelClient
	Tools *Tools

	ModelName     string
	MaxTokens     int64
	MaxIterations int
	CallTimeout   time.Duration // per model call; zero disables
}

// Respond produces the assistant reply for one user message. History must
// be ordered oldest-first and must not include the message itself. A model
// or network failure is returned as an error; the caller degrades it to a
// generic user-facing failure reply. Tool failures never surface as errors:
// they are fed back to the model as failed tool results.
func (o *Orchestrator) Respond(ctx context.Context, profile *domain.Profile, history []domain.ConversationTurn, userText string) (Reply, error) {
	tr := otel.Tracer("agent/Orchestrator")
	ctx, span := tr.Start(ctx, "Respond",
		trace.WithAttributes(
			attribute.String("profile.id", profile.ID),
			attribute.Int("history.len", len(history)),
		),
	)
	defer span.End()

	msgs := make([]anthropic.MessageParam, 0, len(history)+1)
	for _, t := range history {
		if strings.TrimSpace(t.Content) == "" {
			continue
		}
		if t.Role == domain.RoleAssistant {
			msgs = append(msgs, anthropic.NewAssistantMessage(anthropic.NewTextBlock(t.Content)))
		} else {
			msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(t.Content)))
		}
	}
	msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(userText)))

	system := systemPrompt(profile, time.Now().UTC())
	tools := toolSchemas()
	action := domain.ActionNone

	for i := 0; i < o.MaxIterations; i++ {
		resp, err := o.callModel(ctx, anthropic.MessageNewParams{
			Model:     anthropic.Model(o.ModelName),
			MaxTokens: o.MaxTokens,
			Messages:  msgs,
			System:    []anthropic.TextBlockParam{{Text: system}},
			Tools:     tools,
		})
		if err != nil {
			return Reply{}, fmt.Errorf("model call: %w", err)
		}

		var text string
		var toolUses []anthropic.ContentBlockUnion
		for _, block := range resp.Content {
			switch block.Type {
			case "text":
				text += block.Text
			case "tool_use":
				toolUses = append(toolUses, block)
			}
		}

		// Plain text without tool calls ends the loop.
		if len(toolUses) == 0 {
			text = strings.TrimSpace(text)
			if text == "" {
				log.Warn().Str("profile_id", profile.ID).Msg("model returned empty final message")
				text = FallbackReply
			}
			return Reply{Text: text, Action: action}, nil
		}

		// Append the model's own turn verbatim so tool results stay keyed
		// to their tool_use ids, then execute each requested tool in order.
		msgs = append(msgs, resp.ToParam())
		results := make([]anthropic.ContentBlockParamUnion, 0, len(toolUses))
		for _, tu := range toolUses {
			res := o.Tools.Execute(ctx, profile, tu.Name, json.RawMessage(tu.Input), userText)
			if res.Action != "" {
				action = res.Action
			}
			log.Debug().
				Str("profile_id", profile.ID).
				Str("tool", tu.Name).
				Bool("success", res.Success).
				Msg("tool executed")
			results = append(results, anthropic.NewToolResultBlock(tu.ID, res.Message, !res.Success))
		}
		msgs = append(msgs, anthropic.NewUserMessage(results...))
	}

	// The cap is an anomaly, not a normal stop condition.
	log.Warn().
		Str("profile_id", profile.ID).
		Int("iterations", o.MaxIterations).
		Msg("tool loop hit iteration cap")
	return Reply{Text: FallbackReply, Action: action}, nil
}

func (o *Orchestrator) callModel(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	if o.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.CallTimeout)
		defer cancel()
	}
	return o.Model.CreateMessage(ctx, params)
}
