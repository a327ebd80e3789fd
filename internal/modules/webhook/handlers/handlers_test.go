package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akarpou/tradebook/internal/modules/accounts"
	"github.com/akarpou/tradebook/internal/modules/trades"
	"github.com/akarpou/tradebook/internal/modules/webhook"
	testhelpers "github.com/akarpou/tradebook/internal/testing"
)

const testSecret = "test-secret"

func newTestHandler(t *testing.T) (*Handler, string) {
	t.Helper()

	db, cleanup := testhelpers.NewTestDB(t)
	t.Cleanup(cleanup)

	log := zerolog.New(nil).Level(zerolog.Disabled)
	tradesRepo := trades.NewRepository(db.Conn(), log)
	accountsRepo := accounts.NewRepository(db.Conn(), log)
	ledger := webhook.NewLedgerRepository(log)
	reconciler := webhook.NewReconciler(db.Conn(), tradesRepo, accountsRepo, ledger, log)

	accountID := testhelpers.SeedAccount(t, db, "user-1", 10000)

	return NewHandler(reconciler, testSecret, log), accountID
}

func postEvent(t *testing.T, handler *Handler, secret string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	switch b := body.(type) {
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(http.MethodPost, "/api/webhook/events", &buf)
	if secret != "" {
		req.Header.Set("X-Webhook-Secret", secret)
	}

	rec := httptest.NewRecorder()
	handler.HandleEvent(rec, req)
	return rec
}

func TestHandleEvent_RejectsMissingSecret(t *testing.T) {
	handler, accountID := newTestHandler(t)

	rec := postEvent(t, handler, "", webhook.Event{
		EventID:         "evt-1",
		AccountID:       accountID,
		ExternalTradeID: "pos-1",
		Type:            webhook.EventTradeOpened,
	})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleEvent_RejectsWrongSecret(t *testing.T) {
	handler, accountID := newTestHandler(t)

	rec := postEvent(t, handler, "wrong", webhook.Event{
		EventID:         "evt-1",
		AccountID:       accountID,
		ExternalTradeID: "pos-1",
		Type:            webhook.EventTradeOpened,
	})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleEvent_RejectsMalformedBody(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec := postEvent(t, handler, testSecret, "{not json")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleEvent_RejectsInvalidEnvelope(t *testing.T) {
	handler, accountID := newTestHandler(t)

	rec := postEvent(t, handler, testSecret, webhook.Event{
		EventID:         "",
		AccountID:       accountID,
		ExternalTradeID: "pos-1",
		Type:            webhook.EventTradeOpened,
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleEvent_UnknownAccountIs404(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec := postEvent(t, handler, testSecret, webhook.Event{
		EventID:         "evt-1",
		AccountID:       "no-such-account",
		ExternalTradeID: "pos-1",
		Type:            webhook.EventTradeOpened,
	})

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleEvent_SuccessAndReplay(t *testing.T) {
	handler, accountID := newTestHandler(t)

	event := webhook.Event{
		EventID:         "evt-1",
		AccountID:       accountID,
		ExternalTradeID: "pos-1",
		Type:            webhook.EventTradeOpened,
		Payload:         json.RawMessage(`{"symbol":"EURUSD.a","direction":"LONG"}`),
	}

	rec := postEvent(t, handler, testSecret, event)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["success"])

	// Replay returns 200 with the replay message, not an error.
	rec = postEvent(t, handler, testSecret, event)
	require.Equal(t, http.StatusOK, rec.Code)

	body = map[string]interface{}{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Event already processed", body["message"])
}

func TestHandleHealth(t *testing.T) {
	handler, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/webhook/health", nil)
	rec := httptest.NewRecorder()
	handler.HandleHealth(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
