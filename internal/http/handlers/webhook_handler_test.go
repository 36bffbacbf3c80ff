package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	sqlite "github.com/glebarez/sqlite"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/finchat/go-finance-bot/internal/agent"
	"github.com/finchat/go-finance-bot/internal/domain"
	"github.com/finchat/go-finance-bot/internal/repo"
	"github.com/finchat/go-finance-bot/internal/services"
	"github.com/finchat/go-finance-bot/internal/signature"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeSender) SendText(_ context.Context, _, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return nil
}

type fakeModel struct{}

func (fakeModel) CreateMessage(context.Context, anthropic.MessageNewParams) (*anthropic.Message, error) {
	return &anthropic.Message{
		Role:    "assistant",
		Content: []anthropic.ContentBlockUnion{{Type: "text", Text: "noted"}},
	}, nil
}

func newHandlerDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:webhook_handlers_%s?mode=memory&cache=shared", uuid.NewString())
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
	return db
}

func newWebhookRouter(t *testing.T) (*gin.Engine, *services.InboundService, *fakeSender) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := newHandlerDB(t)
	sender := &fakeSender{}
	inbound := &services.InboundService{
		DB: db,
		Agent: &agent.Orchestrator{
			Model:         fakeModel{},
			Tools:         &agent.Tools{DB: db},
			ModelName:     "claude-test",
			MaxTokens:     512,
			MaxIterations: 5,
		},
		Sender:        sender,
		Linker:        &services.LinkingService{DB: db, CodeTTL: 10 * time.Minute},
		HistoryWindow: 12,
		RateLimitMax:  5,
		RateLimitWin:  time.Minute,
	}

	h := &WebhookHandler{Secret: "shh", VerifyToken: "verify-me", Inbound: inbound}
	r := gin.New()
	r.GET("/webhook", h.Verify)
	r.POST("/webhook", h.Receive)
	return r, inbound, sender
}

func TestVerify_Handshake(t *testing.T) {
	r, _, _ := newWebhookRouter(t)

	cases := []struct {
		name   string
		query  string
		status int
		body   string
	}{
		{"valid", "mode=subscribe&verify_token=verify-me&challenge=12345", http.StatusOK, "12345"},
		{"hub prefix", "hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=67890", http.StatusOK, "67890"},
		{"wrong token", "mode=subscribe&verify_token=nope&challenge=12345", http.StatusForbidden, ""},
		{"wrong mode", "mode=unsubscribe&verify_token=verify-me&challenge=12345", http.StatusForbidden, ""},
		{"no params", "", http.StatusForbidden, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/webhook?"+tc.query, nil)
			r.ServeHTTP(w, req)

			if w.Code != tc.status {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tc.status, w.Body.String())
			}
			if tc.body != "" && w.Body.String() != tc.body {
				t.Fatalf("body = %q, want %q", w.Body.String(), tc.body)
			}
		})
	}
}

func deliveryBody(msgID, from, text string) string {
	return fmt.Sprintf(`{
		"object": "whatsapp_business_account",
		"entry": [{
			"id": "entry-1",
			"changes": [{
				"field": "messages",
				"value": {"messages": [{"id": %q, "from": %q, "type": "text", "text": {"body": %q}}]}
			}]
		}]
	}`, msgID, from, text)
}

func TestReceive_BadSignature_Rejected(t *testing.T) {
	r, inbound, sender := newWebhookRouter(t)
	body := deliveryBody("wamid.1", "491700000001", "hello")

	cases := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong secret", signature.Sign("other-secret", []byte(body))},
		{"garbage", "sha256=zzzz"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
			if tc.header != "" {
				req.Header.Set(SignatureHeader, tc.header)
			}
			r.ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", w.Code)
			}
		})
	}

	inbound.Wait()
	if len(sender.sent) != 0 {
		t.Fatalf("rejected delivery was processed: %+v", sender.sent)
	}
}

func TestReceive_TamperedBody_Rejected(t *testing.T) {
	r, _, _ := newWebhookRouter(t)
	signed := deliveryBody("wamid.1", "491700000001", "pay rent 500")
	header := signature.Sign("shh", []byte(signed))
	tampered := deliveryBody("wamid.1", "491700000001", "pay rent 50000")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(tampered))
	req.Header.Set(SignatureHeader, header)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("tampered body accepted: %d", w.Code)
	}
}

func TestReceive_ValidDelivery_AcksAndProcesses(t *testing.T) {
	r, inbound, sender := newWebhookRouter(t)
	body := deliveryBody("wamid.1", "491700000001", "hello")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set(SignatureHeader, signature.Sign("shh", []byte(body)))
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}

	inbound.Wait()
	// The sender is unlinked, so processing ends in the static link prompt.
	if len(sender.sent) != 1 || sender.sent[0] != services.ReplyLinkPrompt {
		t.Fatalf("replies: %+v", sender.sent)
	}
}

func TestReceive_NonTextAndMalformedEvents_Ignored(t *testing.T) {
	r, inbound, sender := newWebhookRouter(t)
	body := `{
		"object": "whatsapp_business_account",
		"entry": [{
			"changes": [{
				"value": {"messages": [
					{"id": "wamid.img", "from": "491700000001", "type": "image"},
					{"id": "", "from": "491700000001", "type": "text", "text": {"body": "no id"}},
					{"id": "wamid.ok", "from": "491700000001", "type": "text", "text": {"body": "real one"}}
				]}
			}]
		}]
	}`

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set(SignatureHeader, signature.Sign("shh", []byte(body)))
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	inbound.Wait()
	if len(sender.sent) != 1 {
		t.Fatalf("exactly one event should be processed, got %d replies", len(sender.sent))
	}
}

func TestReceive_UnparseableAuthenticatedBody_Acked(t *testing.T) {
	r, _, _ := newWebhookRouter(t)
	body := `this is not json`

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set(SignatureHeader, signature.Sign("shh", []byte(body)))
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestProfileEndpoints(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := newHandlerDB(t)
	ph := &ProfileHandler{DB: db, Linker: &services.LinkingService{DB: db, CodeTTL: 10 * time.Minute}}
	r := gin.New()
	r.POST("/profiles", ph.CreateProfile)
	r.POST("/profiles/:id/pairing-code", ph.IssuePairingCode)

	// Create a profile.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/profiles",
		strings.NewReader(`{"display_name": "Maria", "home_currency": "EUR"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d (body %s)", w.Code, w.Body.String())
	}

	var p domain.Profile
	if err := db.First(&p).Error; err != nil {
		t.Fatalf("profile not persisted: %v", err)
	}

	// Issue a pairing code for it.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/profiles/"+p.ID+"/pairing-code", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("pairing-code status = %d (body %s)", w.Code, w.Body.String())
	}
	if _, err := repo.FindProfileByPairingCode(context.Background(), db, extractCode(t, w.Body.String()), time.Now().UTC()); err != nil {
		t.Fatalf("issued code not stored: %v", err)
	}

	// Unknown profile id.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/profiles/"+uuid.NewString()+"/pairing-code", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown profile status = %d", w.Code)
	}
}

func extractCode(t *testing.T, body string) string {
	t.Helper()
	var resp PairingCodeResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		t.Fatalf("decode pairing-code response: %v (%s)", err, body)
	}
	if len(resp.Code) != 6 {
		t.Fatalf("code %q is not 6 digits", resp.Code)
	}
	return resp.Code
}
