package speech

// ASRRequest is one utterance to transcribe.
type ASRRequest struct {
	SessionID string `json:"session_id"`
	AudioData []byte `json:"-"`
	Format    string `json:"format"`   // wav, pcm, mp3, ulaw, alaw
	Language  string `json:"language"` // zh-CN, en-US
}

// TTSRequest is one text to synthesize.
type TTSRequest struct {
	SessionID string  `json:"session_id"`
	Text      string  `json:"text" validate:"required"`
	Voice     string  `json:"voice,omitempty"`
	Speed     float32 `json:"speed,omitempty" validate:"omitempty,gte=0.5,lte=2"`
	Volume    float32 `json:"volume,omitempty" validate:"omitempty,gte=0,lte=2"`
	Format    string  `json:"format,omitempty" validate:"omitempty,oneof=mp3 pcm ogg_opus wav"`
	Language  string  `json:"language,omitempty"`
	// Emotion only takes effect on voices that support styles.
	Emotion      string  `json:"emotion,omitempty" validate:"omitempty,oneof=neutral happy sad angry excited tender comfort magnetic"`
	EmotionScale float32 `json:"emotion_scale,omitempty" validate:"omitempty,gte=1,lte=5"`
}
