package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	sqlite "github.com/glebarez/sqlite"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/finchat/go-finance-bot/internal/agent"
	"github.com/finchat/go-finance-bot/internal/config"
	"github.com/finchat/go-finance-bot/internal/domain"
	"github.com/finchat/go-finance-bot/internal/services"
)

type nullModel struct{}

func (nullModel) CreateMessage(context.Context, anthropic.MessageNewParams) (*anthropic.Message, error) {
	return &anthropic.Message{
		Role:    "assistant",
		Content: []anthropic.ContentBlockUnion{{Type: "text", Text: "ok"}},
	}, nil
}

type nullSender struct{}

func (nullSender) SendText(context.Context, string, string) error { return nil }

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:router_%s?mode=memory&cache=shared", uuid.NewString())
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
	if err := db.AutoMigrate(&domain.ConversationTurn{}, &domain.Profile{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	cfg.Webhook.Secret = "shh"
	cfg.Webhook.VerifyToken = "verify-me"

	linker := &services.LinkingService{DB: db, CodeTTL: 10 * time.Minute}
	inbound := &services.InboundService{
		DB: db,
		Agent: &agent.Orchestrator{
			Model: nullModel{}, Tools: &agent.Tools{DB: db},
			ModelName: "claude-test", MaxTokens: 512, MaxIterations: 5,
		},
		Sender: nullSender{}, Linker: linker,
		HistoryWindow: 12, RateLimitMax: 5, RateLimitWin: time.Minute,
	}

	r := gin.New()
	RegisterRoutes(r, db, inbound, linker, cfg)
	return r
}

func TestRouter_Health(t *testing.T) {
	r := newTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d", w.Code)
	}
}

func TestRouter_Metrics(t *testing.T) {
	r := newTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", w.Code)
	}
}

func TestRouter_UnknownRoute_JSONEnvelope(t *testing.T) {
	r := newTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("non-JSON 404 body: %s", w.Body.String())
	}
	if body["code"] != "not_found" {
		t.Fatalf("envelope: %+v", body)
	}
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	r := newTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/webhook", nil))

	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestRouter_WebhookHandshakeWired(t *testing.T) {
	r := newTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet,
		"/webhook?mode=subscribe&verify_token=verify-me&challenge=42", nil))

	if w.Code != http.StatusOK || w.Body.String() != "42" {
		t.Fatalf("handshake: %d %q", w.Code, w.Body.String())
	}
}
