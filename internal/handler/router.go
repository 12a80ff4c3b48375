package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/z-voice/backend/internal/handler/chat"
	"github.com/zhouzirui/z-voice/backend/internal/handler/speech"
	"github.com/zhouzirui/z-voice/backend/internal/observability"
	chatservice "github.com/zhouzirui/z-voice/backend/internal/service/chat"
	"github.com/zhouzirui/z-voice/backend/internal/service/relay"
	"github.com/zhouzirui/z-voice/backend/internal/service/session"
	speechservice "github.com/zhouzirui/z-voice/backend/internal/service/speech"
	"github.com/zhouzirui/z-voice/backend/pkg/utils"
)

// Dependencies are the services the HTTP surface is built on. Speech and
// Voice may be nil when speech credentials are absent.
type Dependencies struct {
	Chat    *chatservice.Service
	Store   *session.Store
	Relay   *relay.Relay
	Counter *observability.Counter
	Speech  *speechservice.Service
	Voice   *speechservice.VoicePipeline
	// RelayPoll mounts GET /chat/relay for clients that drain replies
	// themselves.
	RelayPoll bool
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})
	r.Get("/health/details", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, healthDetails(deps))
	})

	var chatOpts []chat.Option
	if deps.Voice != nil {
		chatOpts = append(chatOpts, chat.WithVoice(deps.Voice))
	}
	if deps.RelayPoll && deps.Relay != nil {
		chatOpts = append(chatOpts, chat.WithRelayPoll(deps.Relay))
	}
	var publisher chat.Publisher
	if deps.Relay != nil {
		publisher = deps.Relay
	}
	chat.New(deps.Chat, publisher, chatOpts...).RegisterRoutes(r)

	if deps.Speech != nil {
		speech.New(deps.Speech).RegisterRoutes(r)
	}

	return r
}

type details struct {
	Status        string         `json:"status"`
	Sessions      int            `json:"sessions"`
	RelayPending  int            `json:"relay_pending"`
	SpeechEnabled bool           `json:"speech_enabled"`
	Events        map[string]int `json:"events,omitempty"`
}

func healthDetails(deps Dependencies) details {
	d := details{Status: "healthy"}
	if deps.Store != nil {
		d.Sessions = deps.Store.Len()
	}
	if deps.Relay != nil {
		d.RelayPending = deps.Relay.Len()
	}
	if deps.Speech != nil {
		d.SpeechEnabled = deps.Speech.Enabled()
	}
	if deps.Counter != nil {
		d.Events = deps.Counter.Snapshot()
	}
	return d
}
