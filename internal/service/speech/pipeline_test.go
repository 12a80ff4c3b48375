package speech

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/zhouzirui/z-voice/backend/internal/config"
	speechmodel "github.com/zhouzirui/z-voice/backend/internal/model/speech"
)

type fakeTranscriber struct {
	text string
	err  error
}

func (f fakeTranscriber) Transcribe(_ context.Context, sessionID string, _ []byte, _, _ string) (*speechmodel.ASRResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &speechmodel.ASRResponse{SessionID: sessionID, Text: f.text, Confidence: 0.9}, nil
}

type fakeSynthesizer struct {
	err error
}

func (f fakeSynthesizer) Synthesize(_ context.Context, req *speechmodel.TTSRequest) (*speechmodel.TTSResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &speechmodel.TTSResponse{AudioData: []byte("audio:" + req.Text), Format: "mp3"}, nil
}

type fakeResponder struct {
	calls    int
	lastText string
	lastMeta map[string]any
	reply    string
	err      error
}

func (f *fakeResponder) Respond(_ context.Context, _, userText string, metadata map[string]any) (string, error) {
	f.calls++
	f.lastText = userText
	f.lastMeta = metadata
	if f.err != nil {
		return "", f.err
	}
	if f.reply != "" {
		return f.reply, nil
	}
	return "reply to " + userText, nil
}

type fakePublisher struct {
	published []string
}

func (f *fakePublisher) Publish(_ context.Context, _, text string) {
	f.published = append(f.published, text)
}

func TestVoicePipelineProcess(t *testing.T) {
	responder := &fakeResponder{}
	publisher := &fakePublisher{}
	pipeline := NewVoicePipeline(fakeTranscriber{text: " hello "}, fakeSynthesizer{}, responder, publisher)

	out, err := pipeline.Process(context.Background(), VoiceInput{
		SessionID: "s1",
		Audio:     []byte{1},
		Speak:     true,
		Metadata:  map[string]any{"client": "web"},
	})
	if err != nil {
		t.Fatalf("Process err: %v", err)
	}

	if out.Transcript != "hello" || out.Response != "reply to hello" {
		t.Fatalf("unexpected output: %+v", out)
	}
	if responder.lastMeta["input_type"] != "voice" || responder.lastMeta["client"] != "web" {
		t.Fatalf("unexpected metadata: %+v", responder.lastMeta)
	}
	if len(publisher.published) != 1 || publisher.published[0] != "reply to hello" {
		t.Fatalf("expected reply to be published once, got %v", publisher.published)
	}
	audio, _ := base64.StdEncoding.DecodeString(out.Audio)
	if string(audio) != "audio:reply to hello" || out.AudioFormat != "mp3" {
		t.Fatalf("unexpected audio: %q %s", audio, out.AudioFormat)
	}
}

type recordingSynthesizer struct {
	last *speechmodel.TTSRequest
}

func (r *recordingSynthesizer) Synthesize(_ context.Context, req *speechmodel.TTSRequest) (*speechmodel.TTSResponse, error) {
	r.last = req
	return &speechmodel.TTSResponse{AudioData: []byte("x"), Format: "mp3"}, nil
}

func TestVoicePipelineEmotionHint(t *testing.T) {
	synth := &recordingSynthesizer{}
	pipeline := NewVoicePipeline(fakeTranscriber{text: "I feel so sad"}, synth, &fakeResponder{reply: "Tell me what happened."}, nil)

	out, err := pipeline.Process(context.Background(), VoiceInput{SessionID: "s1", Speak: true})
	if err != nil {
		t.Fatalf("Process err: %v", err)
	}
	if synth.last == nil || synth.last.Emotion != "comfort" {
		t.Fatalf("expected comfort emotion hint, got %+v", synth.last)
	}
	if synth.last.EmotionScale < 1 || synth.last.EmotionScale > 5 {
		t.Fatalf("emotion scale out of range: %f", synth.last.EmotionScale)
	}
	if out.Emotion != "comfort" {
		t.Fatalf("response emotion = %q", out.Emotion)
	}
}

func TestVoicePipelineNeutralReplyHasNoEmotion(t *testing.T) {
	synth := &recordingSynthesizer{}
	pipeline := NewVoicePipeline(fakeTranscriber{text: "what time is it"}, synth, &fakeResponder{}, nil)

	if _, err := pipeline.Process(context.Background(), VoiceInput{SessionID: "s1", Speak: true}); err != nil {
		t.Fatalf("Process err: %v", err)
	}
	if synth.last.Emotion != "" || synth.last.EmotionScale != 0 {
		t.Fatalf("neutral exchange should not carry an emotion: %+v", synth.last)
	}
}

func TestVoicePipelineEmptyTranscript(t *testing.T) {
	responder := &fakeResponder{}
	pipeline := NewVoicePipeline(fakeTranscriber{text: "  "}, nil, responder, nil)

	_, err := pipeline.Process(context.Background(), VoiceInput{SessionID: "s1"})
	if !errors.Is(err, ErrEmptyTranscript) {
		t.Fatalf("expected ErrEmptyTranscript, got %v", err)
	}
	if responder.calls != 0 {
		t.Fatal("responder must not run without a transcript")
	}
}

func TestVoicePipelineResponderFailureSkipsPublish(t *testing.T) {
	boom := errors.New("model down")
	publisher := &fakePublisher{}
	pipeline := NewVoicePipeline(fakeTranscriber{text: "hi"}, fakeSynthesizer{}, &fakeResponder{err: boom}, publisher)

	if _, err := pipeline.Process(context.Background(), VoiceInput{SessionID: "s1", Speak: true}); !errors.Is(err, boom) {
		t.Fatalf("expected responder error, got %v", err)
	}
	if len(publisher.published) != 0 {
		t.Fatal("failed exchanges must not be published")
	}
}

func TestVoicePipelineSynthesisFailureKeepsText(t *testing.T) {
	pipeline := NewVoicePipeline(fakeTranscriber{text: "hi"}, fakeSynthesizer{err: errors.New("tts down")}, &fakeResponder{}, nil)

	out, err := pipeline.Process(context.Background(), VoiceInput{SessionID: "s1", Speak: true})
	if err != nil {
		t.Fatalf("synthesis failure should not fail the exchange: %v", err)
	}
	if out.Response != "reply to hi" || out.Audio != "" {
		t.Fatalf("unexpected output: %+v", out)
	}
}

func TestServiceDisabledWithoutCredentials(t *testing.T) {
	svc := NewService(configWithoutCredentials())
	if svc.Enabled() {
		t.Fatal("service should be disabled without credentials")
	}
	if _, err := svc.Transcribe(context.Background(), "s1", []byte{1}, "pcm", ""); !errors.Is(err, ErrSpeechDisabled) {
		t.Fatalf("expected ErrSpeechDisabled, got %v", err)
	}
	if _, _, err := svc.SynthesizeText(context.Background(), "hi"); !errors.Is(err, ErrSpeechDisabled) {
		t.Fatalf("expected ErrSpeechDisabled, got %v", err)
	}
}

func configWithoutCredentials() config.SpeechConfig {
	return config.SpeechConfig{Timeout: 5}
}
