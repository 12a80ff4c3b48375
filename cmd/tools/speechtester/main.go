// Command speechtester exercises the speech provider outside the server:
// transcribe a local audio file or synthesize a line of text to disk.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/zhouzirui/z-voice/backend/internal/config"
	"github.com/zhouzirui/z-voice/backend/internal/logging"
	speechmodel "github.com/zhouzirui/z-voice/backend/internal/model/speech"
	"github.com/zhouzirui/z-voice/backend/internal/service/speech"
	"github.com/zhouzirui/z-voice/backend/pkg/utils"
)

type options struct {
	mode     string
	audio    string
	text     string
	out      string
	format   string
	language string
	voice    string
	emotion  string
	session  string
	timeout  time.Duration
}

func main() {
	logging.Preinit()

	var opts options
	flag.StringVar(&opts.mode, "mode", "", "test mode: asr or tts")
	flag.StringVar(&opts.audio, "audio", "", "input audio file for asr")
	flag.StringVar(&opts.text, "text", "", "input text for tts")
	flag.StringVar(&opts.out, "out", "", "output audio file for tts (derived from the format when empty)")
	flag.StringVar(&opts.format, "format", "", "audio format (asr: input, tts: output)")
	flag.StringVar(&opts.language, "lang", "", "language code, defaults to the configured one")
	flag.StringVar(&opts.voice, "voice", "", "tts voice id, defaults to SPEECH_TTS_VOICE")
	flag.StringVar(&opts.emotion, "emotion", "", "tts emotion for voices that support styles")
	flag.StringVar(&opts.session, "session", "", "session id, generated when empty")
	flag.DurationVar(&opts.timeout, "timeout", 45*time.Second, "request timeout")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		slog.Debug("[speechtester] no .env file, using process environment", "error", err)
	}

	if opts.mode != "asr" && opts.mode != "tts" {
		flag.Usage()
		fatal("choose a mode with -mode=asr or -mode=tts")
	}

	cfg, err := config.LoadSpeech()
	if err != nil {
		fatal("load speech config", "error", err)
	}
	if !cfg.Enabled {
		fatal("speech is disabled, set SPEECH_APP_ID and SPEECH_ACCESS_TOKEN")
	}

	if opts.session == "" {
		opts.session = fmt.Sprintf("manual-%d", time.Now().UnixNano())
	}

	svc := speech.NewService(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()

	switch opts.mode {
	case "asr":
		err = runASR(ctx, svc, cfg, opts)
	case "tts":
		err = runTTS(ctx, svc, cfg, opts)
	}
	if err != nil {
		fatal("speech test failed", "mode", opts.mode, "error", err)
	}
}

func runASR(ctx context.Context, svc *speech.Service, cfg config.SpeechConfig, opts options) error {
	if opts.audio == "" {
		return fmt.Errorf("asr mode needs -audio")
	}
	data, err := os.ReadFile(opts.audio)
	if err != nil {
		return fmt.Errorf("read audio file: %w", err)
	}

	format := opts.format
	if format == "" {
		format = utils.InferAudioFormat(opts.audio)
	}
	language := opts.language
	if language == "" {
		language = cfg.ASRLanguage
	}

	slog.Info("[speechtester] transcribing", "session_id", opts.session, "format", format, "language", language, "bytes", len(data))

	resp, err := svc.Transcribe(ctx, opts.session, data, format, language)
	if err != nil {
		return err
	}

	slog.Info("[speechtester] transcribed",
		"text", resp.Text,
		"confidence", fmt.Sprintf("%.2f", resp.Confidence),
		"duration_ms", resp.Duration,
	)
	return nil
}

func runTTS(ctx context.Context, svc *speech.Service, cfg config.SpeechConfig, opts options) error {
	if strings.TrimSpace(opts.text) == "" {
		return fmt.Errorf("tts mode needs -text")
	}

	req := &speechmodel.TTSRequest{
		SessionID:    opts.session,
		Text:         opts.text,
		Voice:        opts.voice,
		Format:       opts.format,
		Language:     opts.language,
		Emotion:      opts.emotion,
		EmotionScale: 3,
	}
	if req.Format == "" {
		req.Format = "mp3"
	}
	if req.Language == "" {
		req.Language = cfg.TTSLanguage
	}
	if err := utils.Validate(req); err != nil {
		return err
	}

	out := opts.out
	if out == "" {
		out = fmt.Sprintf("tts-output-%d.%s", time.Now().Unix(), req.Format)
	}

	slog.Info("[speechtester] synthesizing", "session_id", opts.session, "voice", req.Voice, "format", req.Format)

	resp, err := svc.Synthesize(ctx, req)
	if err != nil {
		return err
	}
	if err := os.WriteFile(out, resp.AudioData, 0o644); err != nil {
		return fmt.Errorf("write audio file: %w", err)
	}

	slog.Info("[speechtester] synthesized", "file", out, "bytes", len(resp.AudioData), "duration_ms", resp.Duration)
	return nil
}

func fatal(msg string, args ...any) {
	slog.Error("[speechtester] "+msg, args...)
	os.Exit(1)
}
