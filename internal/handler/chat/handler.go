package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/z-voice/backend/internal/model/chat"
	chatservice "github.com/zhouzirui/z-voice/backend/internal/service/chat"
	"github.com/zhouzirui/z-voice/backend/internal/service/relay"
	speechservice "github.com/zhouzirui/z-voice/backend/internal/service/speech"
	"github.com/zhouzirui/z-voice/backend/pkg/utils"
)

// Service is the conversation API the handler drives.
type Service interface {
	Respond(ctx context.Context, sessionID, userText string, metadata map[string]any) (string, error)
	Clear(ctx context.Context, sessionID string) error
	Transcript(sessionID string) ([]chat.Turn, error)
}

// Publisher receives every successful reply.
type Publisher interface {
	Publish(ctx context.Context, sessionID, text string)
}

// RelayReader lets HTTP clients poll replies when no in-process consumer runs.
type RelayReader interface {
	TryTake() (relay.Message, bool)
}

type VoiceProcessor interface {
	Process(ctx context.Context, in speechservice.VoiceInput) (*chat.VoiceResponse, error)
}

// Handler serves the /chat routes.
type Handler struct {
	svc       Service
	publisher Publisher
	voice     VoiceProcessor
	relay     RelayReader
}

type Option func(*Handler)

// WithVoice enables POST /chat/voice.
func WithVoice(v VoiceProcessor) Option {
	return func(h *Handler) { h.voice = v }
}

// WithRelayPoll mounts GET /chat/relay.
func WithRelayPoll(r RelayReader) Option {
	return func(h *Handler) { h.relay = r }
}

func New(svc Service, publisher Publisher, opts ...Option) *Handler {
	h := &Handler{svc: svc, publisher: publisher}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/chat", func(cr chi.Router) {
		cr.Post("/", h.handleChat)
		cr.Post("/voice", h.handleVoice)
		if h.relay != nil {
			cr.Get("/relay", h.handleRelayPoll)
		}
		cr.Get("/{session_id}", h.handleTranscript)
		cr.Delete("/{session_id}", h.handleClear)
	})
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chat.Request
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := utils.Validate(req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	reply, err := h.svc.Respond(r.Context(), req.SessionID, req.Message, req.Metadata)
	if err != nil {
		h.respondServiceError(w, req.SessionID, err)
		return
	}
	if h.publisher != nil {
		h.publisher.Publish(r.Context(), req.SessionID, reply)
	}

	utils.RespondJSON(w, http.StatusOK, chat.Response{Response: reply, SessionID: req.SessionID})
}

func (h *Handler) handleVoice(w http.ResponseWriter, r *http.Request) {
	if h.voice == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "voice chat is not configured")
		return
	}

	upload, err := utils.ReadAudioUpload(w, r)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	sessionID := strings.TrimSpace(r.FormValue("session_id"))
	if sessionID == "" {
		utils.RespondError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	speak := true
	if raw := r.FormValue("speak"); raw != "" {
		if speak, err = strconv.ParseBool(raw); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "speak must be a boolean")
			return
		}
	}

	out, err := h.voice.Process(r.Context(), speechservice.VoiceInput{
		SessionID: sessionID,
		Audio:     upload.Data,
		Format:    upload.Format,
		Language:  r.FormValue("language"),
		Voice:     r.FormValue("voice"),
		Speak:     speak,
	})
	if err != nil {
		h.respondServiceError(w, sessionID, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, out)
}

func (h *Handler) handleTranscript(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	turns, err := h.svc.Transcript(sessionID)
	if err != nil {
		h.respondServiceError(w, sessionID, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, chat.Transcript{SessionID: sessionID, Turns: turns})
}

func (h *Handler) handleClear(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	if err := h.svc.Clear(r.Context(), sessionID); err != nil {
		h.respondServiceError(w, sessionID, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Chat history cleared for session %s", sessionID),
	})
}

func (h *Handler) handleRelayPoll(w http.ResponseWriter, _ *http.Request) {
	msg, ok := h.relay.TryTake()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	utils.RespondJSON(w, http.StatusOK, chat.Response{Response: msg.Text, SessionID: msg.SessionID})
}

func (h *Handler) respondServiceError(w http.ResponseWriter, sessionID string, err error) {
	switch {
	case errors.Is(err, chatservice.ErrEmptyMessage), errors.Is(err, chatservice.ErrSessionIDRequired):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, chatservice.ErrSessionNotFound):
		utils.RespondError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, speechservice.ErrEmptyTranscript):
		utils.RespondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, speechservice.ErrSpeechDisabled):
		utils.RespondError(w, http.StatusServiceUnavailable, "speech service is not configured")
	case chatservice.IsModelInvocation(err):
		slog.Error("[chat] model invocation failed", "session_id", sessionID, "error", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to generate response")
	default:
		slog.Error("[chat] request failed", "session_id", sessionID, "error", err)
		utils.RespondError(w, http.StatusInternalServerError, "internal error")
	}
}
