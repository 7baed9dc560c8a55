package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsai/pulsai/internal/config"
	"github.com/pulsai/pulsai/internal/payment"
	"github.com/pulsai/pulsai/internal/store"
	"github.com/pulsai/pulsai/pkg/models"
)

type fakeOrchestrator struct {
	events []models.InboundEvent
	reply  *models.OutboundReply
	err    error
}

func (f *fakeOrchestrator) HandleEvent(_ context.Context, event models.InboundEvent) (*models.OutboundReply, error) {
	f.events = append(f.events, event)
	return f.reply, f.err
}

func newTestServer(t *testing.T, orch *fakeOrchestrator, st store.ConversationStore) *Server {
	t.Helper()
	cfg := &config.Config{}
	cfg.Server.Port = 0
	cfg.Channels.WhatsAppVerifyToken = "wa-token"
	cfg.Channels.MessengerVerifyToken = "ms-token"

	if st == nil {
		st = store.NewMemoryStore()
	}
	payments := payment.NewClient(payment.Config{PublicKey: "pk", SecretKey: "whsec", Sandbox: true})
	return NewServer(cfg, orch, st, payments, nil)
}

func defaultReply() *models.OutboundReply {
	return &models.OutboundReply{
		Text:      "Bonjour !",
		From:      "ia",
		Stage:     models.StageGreeting,
		Timestamp: 1700000000000,
		Actions:   []string{},
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, &fakeOrchestrator{reply: defaultReply()}, nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestPostMessage(t *testing.T) {
	orch := &fakeOrchestrator{reply: defaultReply()}
	s := newTestServer(t, orch, nil)

	body := `{"userId": "u-1", "channel": "web", "text": "bonjour"}`
	req := httptest.NewRequest(http.MethodPost, "/api/ai/message", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var reply models.OutboundReply
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply))
	assert.Equal(t, "Bonjour !", reply.Text)
	assert.Equal(t, "ia", reply.From)

	require.Len(t, orch.events, 1)
	assert.Equal(t, models.ChannelWeb, orch.events[0].Channel)
}

func TestPostMessage_MissingText(t *testing.T) {
	s := newTestServer(t, &fakeOrchestrator{reply: defaultReply()}, nil)

	body := `{"userId": "u-1", "channel": "web"}`
	req := httptest.NewRequest(http.MethodPost, "/api/ai/message", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostMessage_UnknownChannel(t *testing.T) {
	s := newTestServer(t, &fakeOrchestrator{reply: defaultReply()}, nil)

	body := `{"userId": "u-1", "channel": "telegram", "text": "x"}`
	req := httptest.NewRequest(http.MethodPost, "/api/ai/message", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostMessage_GatewayFaultStillReplies(t *testing.T) {
	orch := &fakeOrchestrator{reply: defaultReply(), err: models.ErrPaymentGateway}
	s := newTestServer(t, orch, nil)

	body := `{"userId": "u-1", "channel": "web", "text": "je paie"}`
	req := httptest.NewRequest(http.MethodPost, "/api/ai/message", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Bonjour !")
}

func TestGetMessages(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	conv, err := st.Create(ctx, "u-1", models.ChannelWeb)
	require.NoError(t, err)
	_, err = st.AppendMessage(ctx, conv.ID, models.RoleUser, "bonjour", models.ChannelWeb)
	require.NoError(t, err)
	_, err = st.AppendMessage(ctx, conv.ID, models.RoleAssistant, "bienvenue", models.ChannelWeb)
	require.NoError(t, err)

	s := newTestServer(t, &fakeOrchestrator{}, st)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ai/messages/u-1/web", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Messages []models.HistoryEntry `json:"messages"`
		UserID   string                `json:"userId"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Len(t, payload.Messages, 2)
	assert.Equal(t, "user", payload.Messages[0].From)
	assert.Equal(t, "ia", payload.Messages[1].From)
	assert.Equal(t, "u-1", payload.UserID)
}

func TestGetStage_DefaultsToGreeting(t *testing.T) {
	s := newTestServer(t, &fakeOrchestrator{}, nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ai/stage/u-404/web", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "greeting")
}

func TestListChannels(t *testing.T) {
	s := newTestServer(t, &fakeOrchestrator{}, nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/channels", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	for _, id := range []string{"web", "whatsapp", "email", "messenger", "instagram"} {
		assert.Contains(t, rec.Body.String(), id)
	}
}

func TestChannelStatus_Unknown(t *testing.T) {
	s := newTestServer(t, &fakeOrchestrator{}, nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/channels/telegram/status", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebhookVerification(t *testing.T) {
	s := newTestServer(t, &fakeOrchestrator{}, nil)

	target := "/api/webhooks/whatsapp?hub.mode=subscribe&hub.verify_token=wa-token&hub.challenge=12345"
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "12345", rec.Body.String())
}

func TestWebhookVerification_BadToken(t *testing.T) {
	s := newTestServer(t, &fakeOrchestrator{}, nil)

	target := "/api/webhooks/messenger?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345"
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestWhatsAppWebhook_AlwaysAcks(t *testing.T) {
	orch := &fakeOrchestrator{reply: defaultReply()}
	s := newTestServer(t, orch, nil)

	payload := `{
		"object": "whatsapp_business_account",
		"entry": [{"changes": [{"value": {"messages": [
			{"from": "22959085540", "id": "wamid.1", "type": "text", "text": {"body": "bonjour"}}
		]}}]}]
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/whatsapp", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, orch.events, 1)
	assert.Equal(t, models.ChannelWhatsApp, orch.events[0].Channel)
	assert.Equal(t, "22959085540", orch.events[0].UserID)
}

func TestWhatsAppWebhook_ProcessingFaultStillAcks(t *testing.T) {
	orch := &fakeOrchestrator{err: models.ErrPersistence}
	s := newTestServer(t, orch, nil)

	payload := `{"entry": [{"changes": [{"value": {"messages": [
		{"from": "1", "id": "wamid.9", "type": "text", "text": {"body": "x"}}
	]}}]}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/whatsapp", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTwilioWebhook(t *testing.T) {
	orch := &fakeOrchestrator{reply: defaultReply()}
	s := newTestServer(t, orch, nil)

	form := url.Values{}
	form.Set("From", "whatsapp:+22959085540")
	form.Set("Body", "bonjour")
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/twilio/whatsapp", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, orch.events, 1)
	assert.Equal(t, "+22959085540", orch.events[0].UserID)
}

func TestEmailWebhook(t *testing.T) {
	orch := &fakeOrchestrator{reply: defaultReply()}
	s := newTestServer(t, orch, nil)

	form := url.Values{}
	form.Set("from", "client@example.com")
	form.Set("subject", "Tarifs")
	form.Set("text", "Combien ?")
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/email", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, orch.events, 1)
	assert.Equal(t, models.ChannelEmail, orch.events[0].Channel)
}

func TestListPlans(t *testing.T) {
	s := newTestServer(t, &fakeOrchestrator{}, nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/payment/plans", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "29900")
	assert.Contains(t, rec.Body.String(), "Enterprise")
}

func TestPaymentWebhook_SignatureRequired(t *testing.T) {
	s := newTestServer(t, &fakeOrchestrator{}, nil)

	body := `{"transactionId": "tx-1", "status": "SUCCESS", "amount": 29900, "data": "u-1"}`

	// Bad signature rejected.
	req := httptest.NewRequest(http.MethodPost, "/api/payment/webhook", strings.NewReader(body))
	req.Header.Set("x-kkiapay-signature", "bad")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Correct signature accepted.
	mac := hmac.New(sha256.New, []byte("whsec"))
	mac.Write([]byte(body))
	req = httptest.NewRequest(http.MethodPost, "/api/payment/webhook", strings.NewReader(body))
	req.Header.Set("x-kkiapay-signature", hex.EncodeToString(mac.Sum(nil)))
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "received")
}

func TestCreatePayment_Validation(t *testing.T) {
	s := newTestServer(t, &fakeOrchestrator{}, nil)

	body := `{"userId": "u-1", "amount": 0, "reason": "x"}`
	req := httptest.NewRequest(http.MethodPost, "/api/payment/create", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreatePayment(t *testing.T) {
	s := newTestServer(t, &fakeOrchestrator{}, nil)

	body := `{"userId": "u-1", "amount": 29900, "reason": "Abonnement Pro"}`
	req := httptest.NewRequest(http.MethodPost, "/api/payment/create", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "widget.kkiapay.me")
	assert.Contains(t, rec.Body.String(), "FCFA")
}
