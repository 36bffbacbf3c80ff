package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/finchat/go-finance-bot/internal/domain"
	"github.com/finchat/go-finance-bot/internal/repo"
)

// fakeModel replays canned responses and records every request it saw.
type fakeModel struct {
	responses []*anthropic.Message
	err       error
	calls     int
	params    []anthropic.MessageNewParams
}

func (f *fakeModel) CreateMessage(_ context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	f.params = append(f.params, params)
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	idx := f.calls - 1
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	return f.responses[idx], nil
}

func textMsg(text string) *anthropic.Message {
	return &anthropic.Message{
		Role:    "assistant",
		Content: []anthropic.ContentBlockUnion{{Type: "text", Text: text}},
	}
}

func toolMsg(id, name, input string) *anthropic.Message {
	return &anthropic.Message{
		Role: "assistant",
		Content: []anthropic.ContentBlockUnion{
			{Type: "tool_use", ID: id, Name: name, Input: json.RawMessage(input)},
		},
	}
}

func newAgentDB(t *testing.T) (*gorm.DB, *domain.Profile) {
	t.Helper()

	dsn := fmt.Sprintf("file:agent_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := db.AutoMigrate(
		&domain.Profile{}, &domain.Category{}, &domain.Transaction{}, &domain.ExchangeRateSnapshot{},
	); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	ctx := context.Background()
	p, err := repo.CreateProfile(ctx, db, "Maria", "EUR")
	if err != nil {
		t.Fatalf("CreateProfile: %v", err)
	}
	if err := repo.SeedCategories(ctx, db); err != nil {
		t.Fatalf("SeedCategories: %v", err)
	}
	if _, err := repo.SaveSnapshot(ctx, db, "USD", map[string]float64{"EUR": 0.9, "GBP": 0.78}); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	return db, p
}

func newOrchestrator(model ModelClient, db *gorm.DB) *Orchestrator {
	return &Orchestrator{
		Model:         model,
		Tools:         &Tools{DB: db},
		ModelName:     "claude-test",
		MaxTokens:     512,
		MaxIterations: 5,
	}
}

func TestRespond_PlainText(t *testing.T) {
	db, p := newAgentDB(t)
	model := &fakeModel{responses: []*anthropic.Message{textMsg("Hello Maria!")}}
	o := newOrchestrator(model, db)

	got, err := o.Respond(context.Background(), p, nil, "hi")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if got.Text != "Hello Maria!" || got.Action != domain.ActionNone {
		t.Fatalf("unexpected reply: %+v", got)
	}
	if model.calls != 1 {
		t.Fatalf("model called %d times, want 1", model.calls)
	}

	// The request carries tool schemas and the system prompt.
	req := model.params[0]
	if len(req.Tools) != 2 {
		t.Fatalf("tools in request: %d, want 2", len(req.Tools))
	}
	if len(req.System) == 0 || !strings.Contains(req.System[0].Text, "Maria") {
		t.Fatalf("system prompt missing profile facts: %+v", req.System)
	}
}

func TestRespond_HistoryInContext(t *testing.T) {
	db, p := newAgentDB(t)
	model := &fakeModel{responses: []*anthropic.Message{textMsg("ok")}}
	o := newOrchestrator(model, db)

	history := []domain.ConversationTurn{
		{Role: domain.RoleUser, Content: "earlier question"},
		{Role: domain.RoleAssistant, Content: "earlier answer"},
		{Role: domain.RoleUser, Content: "   "}, // blank turns are skipped
	}
	if _, err := o.Respond(context.Background(), p, history, "new question"); err != nil {
		t.Fatalf("Respond: %v", err)
	}

	msgs := model.params[0].Messages
	// 2 non-blank history turns + the new user message.
	if len(msgs) != 3 {
		t.Fatalf("messages in request: %d, want 3", len(msgs))
	}
}

func TestRespond_ToolCall_RegistersAndReplies(t *testing.T) {
	db, p := newAgentDB(t)
	model := &fakeModel{responses: []*anthropic.Message{
		toolMsg("tu_1", "register_transaction", `{"amount": 20, "currency": "USD", "description": "Lunch", "category_hint": "food"}`),
		textMsg("Saved your lunch!"),
	}}
	o := newOrchestrator(model, db)

	got, err := o.Respond(context.Background(), p, nil, "I spent $20 on lunch")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if got.Text != "Saved your lunch!" {
		t.Fatalf("reply text: %q", got.Text)
	}
	if got.Action != domain.ActionRegistered {
		t.Fatalf("action: %q, want registered", got.Action)
	}
	if model.calls != 2 {
		t.Fatalf("model called %d times, want 2", model.calls)
	}

	// The tool actually wrote the transaction.
	var txns []domain.Transaction
	if err := db.Find(&txns).Error; err != nil {
		t.Fatalf("load transactions: %v", err)
	}
	if len(txns) != 1 {
		t.Fatalf("transactions: %d, want 1", len(txns))
	}
	if txns[0].Currency != "USD" || txns[0].Amount != 20 || txns[0].AmountHome != 18 {
		t.Fatalf("unexpected transaction: %+v", txns[0])
	}

	// The second request feeds the tool result back.
	second := model.params[1].Messages
	if len(second) < 3 {
		t.Fatalf("second request messages: %d, want >= 3", len(second))
	}
}

func TestRespond_IterationCap_FallsBack(t *testing.T) {
	db, p := newAgentDB(t)
	// The model never stops asking for tools.
	model := &fakeModel{responses: []*anthropic.Message{
		toolMsg("tu_x", "query_transactions", `{"date_from":"2026-08-01","date_to":"2026-08-31","mode":"summary"}`),
	}}
	o := newOrchestrator(model, db)
	o.MaxIterations = 3

	got, err := o.Respond(context.Background(), p, nil, "how much did I spend?")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if got.Text != FallbackReply {
		t.Fatalf("reply at cap: %q, want fallback", got.Text)
	}
	if got.Action != domain.ActionQueried {
		t.Fatalf("action at cap: %q, want queried (tools did run)", got.Action)
	}
	if model.calls != 3 {
		t.Fatalf("model called %d times, want exactly the cap of 3", model.calls)
	}
}

func TestRespond_EmptyFinalText_FallsBack(t *testing.T) {
	db, p := newAgentDB(t)
	model := &fakeModel{responses: []*anthropic.Message{textMsg("   ")}}
	o := newOrchestrator(model, db)

	got, err := o.Respond(context.Background(), p, nil, "hi")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if got.Text != FallbackReply {
		t.Fatalf("reply: %q, want fallback", got.Text)
	}
}

func TestRespond_ModelError_Surfaces(t *testing.T) {
	db, p := newAgentDB(t)
	model := &fakeModel{err: errors.New("api unreachable")}
	o := newOrchestrator(model, db)
	o.CallTimeout = time.Second

	if _, err := o.Respond(context.Background(), p, nil, "hi"); err == nil {
		t.Fatalf("expected model error to surface")
	}
}
