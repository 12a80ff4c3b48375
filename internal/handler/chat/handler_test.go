package chat

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/z-voice/backend/internal/model/chat"
	chatservice "github.com/zhouzirui/z-voice/backend/internal/service/chat"
	"github.com/zhouzirui/z-voice/backend/internal/service/relay"
	"github.com/zhouzirui/z-voice/backend/internal/service/session"
	speechservice "github.com/zhouzirui/z-voice/backend/internal/service/speech"
)

type echoGateway struct {
	fail bool
}

func (g *echoGateway) Generate(_ context.Context, input string, _ []chat.Turn, _ map[string]any) (string, error) {
	if g.fail {
		return "", errors.New("upstream unavailable")
	}
	return "echo: " + input, nil
}

type fixture struct {
	router  *chi.Mux
	gateway *echoGateway
	relay   *relay.Relay
	svc     *chatservice.Service
}

func setupRouter(opts ...Option) *fixture {
	gateway := &echoGateway{}
	svc := chatservice.NewService(session.NewStore(), gateway)
	rl := relay.New(8, nil)

	r := chi.NewRouter()
	New(svc, rl, opts...).RegisterRoutes(r)
	return &fixture{router: r, gateway: gateway, relay: rl, svc: svc}
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	f.router.ServeHTTP(resp, req)
	return resp
}

func TestChatSuccess(t *testing.T) {
	f := setupRouter()

	resp := f.do(http.MethodPost, "/chat", `{"message":"hello","session_id":"s1","metadata":{"client":"test"}}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var body chat.Response
	if err := sonic.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Response != "echo: hello" || body.SessionID != "s1" {
		t.Fatalf("unexpected body: %+v", body)
	}

	msg, ok := f.relay.TryTake()
	if !ok || msg.Text != "echo: hello" || msg.SessionID != "s1" {
		t.Fatalf("expected reply on relay, got %+v ok=%v", msg, ok)
	}
}

func TestChatValidation(t *testing.T) {
	f := setupRouter()

	cases := []struct {
		name string
		body string
	}{
		{name: "malformed", body: `{"message":`},
		{name: "missing message", body: `{"session_id":"s1"}`},
		{name: "missing session", body: `{"message":"hi"}`},
		{name: "blank message", body: `{"message":"   ","session_id":"s1"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := f.do(http.MethodPost, "/chat", tc.body)
			if resp.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", resp.Code, resp.Body.String())
			}
		})
	}
	if f.relay.Len() != 0 {
		t.Fatal("rejected requests must not publish")
	}
}

func TestChatModelFailure(t *testing.T) {
	f := setupRouter()
	f.gateway.fail = true

	resp := f.do(http.MethodPost, "/chat", `{"message":"hello","session_id":"s1"}`)
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.Code)
	}
	if f.relay.Len() != 0 {
		t.Fatal("failed exchanges must not publish")
	}

	turns, err := f.svc.Transcript("s1")
	if err != nil || len(turns) != 0 {
		t.Fatalf("expected empty history after failure, got %d turns (%v)", len(turns), err)
	}
}

func TestTranscript(t *testing.T) {
	f := setupRouter()
	f.do(http.MethodPost, "/chat", `{"message":"hello","session_id":"s1"}`)

	resp := f.do(http.MethodGet, "/chat/s1", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var body chat.Transcript
	if err := sonic.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode transcript: %v", err)
	}
	if len(body.Turns) != 2 || body.Turns[0].Role != chat.RoleUser || body.Turns[1].Content != "echo: hello" {
		t.Fatalf("unexpected transcript: %+v", body)
	}

	if resp := f.do(http.MethodGet, "/chat/missing", ""); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown session, got %d", resp.Code)
	}
}

func TestClearSession(t *testing.T) {
	f := setupRouter()
	f.do(http.MethodPost, "/chat", `{"message":"hello","session_id":"s1"}`)

	resp := f.do(http.MethodDelete, "/chat/s1", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var body map[string]string
	_ = sonic.Unmarshal(resp.Body.Bytes(), &body)
	if body["message"] != "Chat history cleared for session s1" {
		t.Fatalf("unexpected message: %+v", body)
	}

	turns, err := f.svc.Transcript("s1")
	if err != nil || len(turns) != 0 {
		t.Fatalf("expected empty but existing session, got %d turns (%v)", len(turns), err)
	}
}

func TestClearUnknownSession(t *testing.T) {
	f := setupRouter()

	resp := f.do(http.MethodDelete, "/chat/ghost", "")
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestRelayPoll(t *testing.T) {
	f := setupRouter()
	// mount the poll route on a router sharing the fixture's relay
	r := chi.NewRouter()
	New(f.svc, f.relay, WithRelayPoll(f.relay)).RegisterRoutes(r)

	empty := httptest.NewRecorder()
	r.ServeHTTP(empty, httptest.NewRequest(http.MethodGet, "/chat/relay", nil))
	if empty.Code != http.StatusNoContent {
		t.Fatalf("expected 204 on empty relay, got %d", empty.Code)
	}

	f.relay.Publish(context.Background(), "s1", "queued reply")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/chat/relay", nil))
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), "queued reply") {
		t.Fatalf("expected queued reply, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestRelayPollNotMountedByDefault(t *testing.T) {
	f := setupRouter()

	// without the poll option "relay" is just a session id
	if resp := f.do(http.MethodGet, "/chat/relay", ""); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown session, got %d", resp.Code)
	}
}

type stubVoice struct {
	in  speechservice.VoiceInput
	err error
}

func (s *stubVoice) Process(_ context.Context, in speechservice.VoiceInput) (*chat.VoiceResponse, error) {
	s.in = in
	if s.err != nil {
		return nil, s.err
	}
	return &chat.VoiceResponse{SessionID: in.SessionID, Transcript: "hi", Response: "echo: hi"}, nil
}

func voiceRequest(t *testing.T, fields map[string]string, withAudio bool) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		_ = mw.WriteField(k, v)
	}
	if withAudio {
		part, _ := mw.CreateFormFile("audio", "clip.wav")
		_, _ = part.Write([]byte("RIFFdata"))
	}
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/chat/voice", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestVoiceChat(t *testing.T) {
	voice := &stubVoice{}
	f := setupRouter(WithVoice(voice))

	resp := httptest.NewRecorder()
	f.router.ServeHTTP(resp, voiceRequest(t, map[string]string{"session_id": "s1", "speak": "false"}, true))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if voice.in.SessionID != "s1" || voice.in.Format != "wav" || voice.in.Speak {
		t.Fatalf("unexpected pipeline input: %+v", voice.in)
	}
}

func TestVoiceChatErrors(t *testing.T) {
	cases := []struct {
		name   string
		opts   []Option
		fields map[string]string
		audio  bool
		want   int
	}{
		{name: "not configured", fields: map[string]string{"session_id": "s1"}, audio: true, want: http.StatusServiceUnavailable},
		{name: "missing audio", opts: []Option{WithVoice(&stubVoice{})}, fields: map[string]string{"session_id": "s1"}, want: http.StatusBadRequest},
		{name: "missing session", opts: []Option{WithVoice(&stubVoice{})}, audio: true, want: http.StatusBadRequest},
		{name: "nothing heard", opts: []Option{WithVoice(&stubVoice{err: speechservice.ErrEmptyTranscript})}, fields: map[string]string{"session_id": "s1"}, audio: true, want: http.StatusUnprocessableEntity},
		{
			name:   "model failure",
			opts:   []Option{WithVoice(&stubVoice{err: &chatservice.ModelInvocationError{SessionID: "s1", Err: errors.New("boom")}})},
			fields: map[string]string{"session_id": "s1"},
			audio:  true,
			want:   http.StatusInternalServerError,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := setupRouter(tc.opts...)
			resp := httptest.NewRecorder()
			f.router.ServeHTTP(resp, voiceRequest(t, tc.fields, tc.audio))
			if resp.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, resp.Code, resp.Body.String())
			}
		})
	}
}
