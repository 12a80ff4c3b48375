// Package speech provides speech recognition and synthesis on Volcengine,
// and the voice pipeline that feeds recognized text into a conversation.
package speech

import (
	"context"
	"time"

	"github.com/samber/oops"

	"github.com/zhouzirui/z-voice/backend/internal/config"
	speechmodel "github.com/zhouzirui/z-voice/backend/internal/model/speech"
)

// Service wraps the recognizer and synthesizer with the configured timeout.
type Service struct {
	cfg     config.SpeechConfig
	asr     *ASRClient
	tts     *TTSClient
	timeout time.Duration
}

func NewService(cfg config.SpeechConfig) *Service {
	return &Service{
		cfg:     cfg,
		asr:     NewASRClient(cfg),
		tts:     NewTTSClient(cfg),
		timeout: time.Duration(cfg.Timeout) * time.Second,
	}
}

// Enabled reports whether credentials are present.
func (s *Service) Enabled() bool {
	_, _, err := resolveCredentials(s.cfg)
	return err == nil
}

// Transcribe recognizes one utterance. G.711 input is decoded to PCM first.
func (s *Service) Transcribe(ctx context.Context, sessionID string, audio []byte, format, language string) (*speechmodel.ASRResponse, error) {
	if !s.Enabled() {
		return nil, ErrSpeechDisabled
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	pcm, normalized := normalizeAudio(audio, format)
	resp, err := s.asr.Transcribe(ctx, &speechmodel.ASRRequest{
		SessionID: sessionID,
		AudioData: pcm,
		Format:    normalized,
		Language:  language,
	})
	if err != nil {
		return nil, oops.In("speech").Tags("asr").With("session_id", sessionID, "format", normalized).Wrap(err)
	}
	return resp, nil
}

func (s *Service) Synthesize(ctx context.Context, req *speechmodel.TTSRequest) (*speechmodel.TTSResponse, error) {
	if !s.Enabled() {
		return nil, ErrSpeechDisabled
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	resp, err := s.tts.Synthesize(ctx, req)
	if err != nil {
		return nil, oops.In("speech").Tags("tts").With("session_id", req.SessionID, "voice", req.Voice).Wrap(err)
	}
	return resp, nil
}

// SynthesizeText synthesizes with the configured voice and returns the audio
// and its format.
func (s *Service) SynthesizeText(ctx context.Context, text string) ([]byte, string, error) {
	resp, err := s.Synthesize(ctx, &speechmodel.TTSRequest{Text: text})
	if err != nil {
		return nil, "", err
	}
	return resp.AudioData, resp.Format, nil
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}
