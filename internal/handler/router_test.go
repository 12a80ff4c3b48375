package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bytedance/sonic"

	"github.com/zhouzirui/z-voice/backend/internal/model/chat"
	"github.com/zhouzirui/z-voice/backend/internal/observability"
	chatservice "github.com/zhouzirui/z-voice/backend/internal/service/chat"
	"github.com/zhouzirui/z-voice/backend/internal/service/relay"
	"github.com/zhouzirui/z-voice/backend/internal/service/session"
)

type replyGateway struct{}

func (replyGateway) Generate(_ context.Context, input string, _ []chat.Turn, _ map[string]any) (string, error) {
	return "ok: " + input, nil
}

func newTestRouter(relayPoll bool) (http.Handler, Dependencies) {
	counter := observability.NewCounter()
	store := session.NewStore()
	deps := Dependencies{
		Chat:      chatservice.NewService(store, replyGateway{}, chatservice.WithObserver(counter)),
		Store:     store,
		Relay:     relay.New(4, counter),
		Counter:   counter,
		RelayPoll: relayPoll,
	}
	return NewRouter(deps), deps
}

func TestHealth(t *testing.T) {
	router, _ := newTestRouter(false)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health", nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if body := strings.TrimSpace(resp.Body.String()); body != `{"status":"healthy"}` {
		t.Fatalf("unexpected body %s", body)
	}
}

func TestHealthDetails(t *testing.T) {
	router, _ := newTestRouter(false)

	chatReq := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"hi","session_id":"s1"}`))
	router.ServeHTTP(httptest.NewRecorder(), chatReq)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/details", nil))

	var body details
	if err := sonic.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Sessions != 1 || body.RelayPending != 1 || body.SpeechEnabled {
		t.Fatalf("unexpected details: %+v", body)
	}
	if body.Events[string(chatservice.EventRespondSuccess)] != 1 || body.Events[string(relay.EventPublish)] != 1 {
		t.Fatalf("unexpected event counts: %+v", body.Events)
	}
}

func TestSpeechRoutesAbsentWithoutService(t *testing.T) {
	router, _ := newTestRouter(false)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/speech/synthesize", strings.NewReader(`{"text":"hi"}`)))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestRelayPollRoute(t *testing.T) {
	router, deps := newTestRouter(true)
	deps.Relay.Publish(context.Background(), "s1", "hello")

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/chat/relay", nil))
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), "hello") {
		t.Fatalf("expected relayed reply, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestCORSPreflight(t *testing.T) {
	router, _ := newTestRouter(false)

	req := httptest.NewRequest(http.MethodOptions, "/chat", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.Code)
	}
	if got := resp.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("unexpected allow origin %q", got)
	}
}

func TestRecovererReturns500(t *testing.T) {
	router, _ := newTestRouter(false)
	mux := router.(interface {
		Get(string, http.HandlerFunc)
	})
	mux.Get("/panic", func(http.ResponseWriter, *http.Request) { panic("boom") })

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/panic", nil))
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.Code)
	}
}
