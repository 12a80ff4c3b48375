package speech

import "time"

type ASRResponse struct {
	SessionID  string    `json:"session_id"`
	Text       string    `json:"text"`
	Confidence float64   `json:"confidence"`
	Duration   int64     `json:"duration_ms"`
	RequestID  string    `json:"request_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type TTSResponse struct {
	SessionID string    `json:"session_id"`
	AudioData []byte    `json:"-"`
	Duration  int64     `json:"duration_ms"`
	Format    string    `json:"format"`
	RequestID string    `json:"request_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SynthesizeResponse is the JSON form of a TTSResponse with base64 audio.
type SynthesizeResponse struct {
	TTSResponse
	Audio string `json:"audio"`
}
