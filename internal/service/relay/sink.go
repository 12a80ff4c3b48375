package relay

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/samber/oops"
)

// LogSink writes a preview of each reply to the log.
type LogSink struct {
	PreviewLen int
}

func (s LogSink) Deliver(_ context.Context, msg Message) error {
	slog.Info("[relay] assistant reply", "session_id", msg.SessionID, "preview", preview(msg.Text, s.PreviewLen))
	return nil
}

func preview(text string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit]) + "..."
}

// Synthesizer turns text into encoded audio.
type Synthesizer interface {
	SynthesizeText(ctx context.Context, text string) ([]byte, string, error)
}

// SpeechSink synthesizes each reply and writes it to Dir as
// <session>-<unix nanos>.<format>.
type SpeechSink struct {
	Synth Synthesizer
	Dir   string
}

func (s SpeechSink) Deliver(ctx context.Context, msg Message) error {
	audio, format, err := s.Synth.SynthesizeText(ctx, msg.Text)
	if err != nil {
		return oops.In("relay").With("session_id", msg.SessionID).Wrapf(err, "synthesize reply")
	}
	if s.Dir == "" {
		return nil
	}

	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return oops.In("relay").Wrapf(err, "create audio dir")
	}
	name := filepath.Join(s.Dir, filepath.Base(msg.SessionID)+"-"+time.Now().UTC().Format("20060102T150405.000000000")+"."+format)
	if err := os.WriteFile(name, audio, 0o644); err != nil {
		return oops.In("relay").With("path", name).Wrapf(err, "write audio")
	}
	slog.Info("[relay] audio written", "session_id", msg.SessionID, "path", name, "bytes", len(audio))
	return nil
}

// MultiSink delivers to every sink and joins their errors.
type MultiSink []Sink

func (m MultiSink) Deliver(ctx context.Context, msg Message) error {
	var errs []error
	for _, sink := range m {
		if err := sink.Deliver(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
