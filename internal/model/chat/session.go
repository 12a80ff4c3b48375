package chat

// Request is the body of POST /chat.
type Request struct {
	Message   string         `json:"message" validate:"required"`
	SessionID string         `json:"session_id" validate:"required"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Response is the body returned by POST /chat.
type Response struct {
	Response  string `json:"response"`
	SessionID string `json:"session_id"`
}

// Transcript is the read view of a session history.
type Transcript struct {
	SessionID string `json:"session_id"`
	Turns     []Turn `json:"turns"`
}

// VoiceResponse is the result of one spoken exchange.
type VoiceResponse struct {
	SessionID   string `json:"session_id"`
	Transcript  string `json:"transcript"`
	Response    string `json:"response"`
	Audio       string `json:"audio,omitempty"`
	AudioFormat string `json:"audio_format,omitempty"`
	Emotion     string `json:"emotion,omitempty"`
}
