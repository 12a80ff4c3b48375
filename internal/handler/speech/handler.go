package speech

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/z-voice/backend/internal/model/speech"
	speechsvc "github.com/zhouzirui/z-voice/backend/internal/service/speech"
	"github.com/zhouzirui/z-voice/backend/pkg/utils"
)

// SpeechService is the recognizer and synthesizer the handler exposes.
type SpeechService interface {
	Enabled() bool
	Transcribe(ctx context.Context, sessionID string, audio []byte, format, language string) (*speech.ASRResponse, error)
	Synthesize(ctx context.Context, req *speech.TTSRequest) (*speech.TTSResponse, error)
}

type Handler struct {
	speechSvc SpeechService
}

func New(speechSvc SpeechService) *Handler {
	return &Handler{speechSvc: speechSvc}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/speech", func(sr chi.Router) {
		sr.Post("/transcribe", h.handleTranscribe)
		sr.Post("/synthesize", h.handleSynthesize)
		sr.Get("/health", h.handleHealth)
	})
}

func (h *Handler) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if !h.speechSvc.Enabled() {
		utils.RespondError(w, http.StatusServiceUnavailable, "speech service is not configured")
		return
	}

	upload, err := utils.ReadAudioUpload(w, r)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	resp, err := h.speechSvc.Transcribe(r.Context(), r.FormValue("session_id"), upload.Data, upload.Format, r.FormValue("language"))
	if err != nil {
		slog.Error("[speech] transcription failed", "error", err)
		utils.RespondError(w, http.StatusBadGateway, "speech recognition failed")
		return
	}
	utils.RespondJSON(w, http.StatusOK, resp)
}

// handleSynthesize returns raw audio, or base64 JSON when the client accepts
// only JSON.
func (h *Handler) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	if !h.speechSvc.Enabled() {
		utils.RespondError(w, http.StatusServiceUnavailable, "speech service is not configured")
		return
	}

	var req speech.TTSRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Text = strings.TrimSpace(req.Text)
	if err := utils.Validate(req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.speechSvc.Synthesize(r.Context(), &req)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, speechsvc.ErrSpeechDisabled) {
			status = http.StatusServiceUnavailable
		}
		slog.Error("[speech] synthesis failed", "error", err)
		utils.RespondError(w, status, "speech synthesis failed")
		return
	}

	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		utils.RespondJSON(w, http.StatusOK, speech.SynthesizeResponse{
			TTSResponse: *resp,
			Audio:       base64.StdEncoding.EncodeToString(resp.AudioData),
		})
		return
	}

	format := resp.Format
	if format == "" {
		format = "octet-stream"
	}
	w.Header().Set("Content-Type", "audio/"+format)
	w.Header().Set("Content-Length", strconv.Itoa(len(resp.AudioData)))
	w.Header().Set("Content-Disposition", "attachment; filename=speech."+format)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(resp.AudioData); err != nil {
		slog.Debug("[speech] failed to write audio", "error", err)
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := "healthy"
	if !h.speechSvc.Enabled() {
		status = "disabled"
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": status, "service": "speech"})
}
