package speech

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"maps"
	"strings"

	"github.com/zhouzirui/z-voice/backend/internal/analysis/emotion"
	chatmodel "github.com/zhouzirui/z-voice/backend/internal/model/chat"
	speechmodel "github.com/zhouzirui/z-voice/backend/internal/model/speech"
)

// ErrEmptyTranscript is returned when the recognizer heard nothing usable.
var ErrEmptyTranscript = errors.New("no speech recognized")

type Transcriber interface {
	Transcribe(ctx context.Context, sessionID string, audio []byte, format, language string) (*speechmodel.ASRResponse, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, req *speechmodel.TTSRequest) (*speechmodel.TTSResponse, error)
}

// Responder runs one conversational exchange.
type Responder interface {
	Respond(ctx context.Context, sessionID, userText string, metadata map[string]any) (string, error)
}

// Publisher hands a finished reply to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, sessionID, text string)
}

// VoiceInput is one spoken user message.
type VoiceInput struct {
	SessionID string
	Audio     []byte
	Format    string
	Language  string
	Voice     string
	// Speak requests synthesized audio in the response.
	Speak    bool
	Metadata map[string]any
}

// VoicePipeline turns speech into a conversational turn: recognize, respond,
// publish and optionally speak the reply.
type VoicePipeline struct {
	asr       Transcriber
	tts       Synthesizer
	responder Responder
	publisher Publisher
}

func NewVoicePipeline(asr Transcriber, tts Synthesizer, responder Responder, publisher Publisher) *VoicePipeline {
	return &VoicePipeline{asr: asr, tts: tts, responder: responder, publisher: publisher}
}

func (p *VoicePipeline) Process(ctx context.Context, in VoiceInput) (*chatmodel.VoiceResponse, error) {
	asrResp, err := p.asr.Transcribe(ctx, in.SessionID, in.Audio, in.Format, in.Language)
	if err != nil {
		return nil, err
	}
	text := strings.TrimSpace(asrResp.Text)
	if text == "" {
		return nil, ErrEmptyTranscript
	}

	metadata := make(map[string]any, len(in.Metadata)+2)
	maps.Copy(metadata, in.Metadata)
	metadata["input_type"] = "voice"
	metadata["asr_confidence"] = asrResp.Confidence

	reply, err := p.responder.Respond(ctx, in.SessionID, text, metadata)
	if err != nil {
		return nil, err
	}
	if p.publisher != nil {
		p.publisher.Publish(ctx, in.SessionID, reply)
	}

	out := &chatmodel.VoiceResponse{
		SessionID:  in.SessionID,
		Transcript: text,
		Response:   reply,
	}
	if !in.Speak || p.tts == nil {
		return out, nil
	}

	// The exchange is already committed, so a synthesis failure only costs
	// the audio.
	ttsReq := &speechmodel.TTSRequest{
		SessionID: in.SessionID,
		Text:      reply,
		Voice:     in.Voice,
		Language:  in.Language,
	}
	if tone := emotion.Analyze(text, reply); tone.Expressive() {
		ttsReq.Emotion = string(tone.Emotion)
		ttsReq.EmotionScale = tone.Scale
	}
	ttsResp, err := p.tts.Synthesize(ctx, ttsReq)
	if err != nil {
		slog.Warn("[voice] reply synthesis failed", "session_id", in.SessionID, "error", err)
		return out, nil
	}
	out.Audio = base64.StdEncoding.EncodeToString(ttsResp.AudioData)
	out.AudioFormat = ttsResp.Format
	out.Emotion = ttsReq.Emotion
	return out, nil
}
