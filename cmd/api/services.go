package main

import (
	"context"
	"log/slog"

	"github.com/samber/do"

	"github.com/zhouzirui/z-voice/backend/internal/config"
	"github.com/zhouzirui/z-voice/backend/internal/observability"
	"github.com/zhouzirui/z-voice/backend/internal/service/ai"
	"github.com/zhouzirui/z-voice/backend/internal/service/chat"
	"github.com/zhouzirui/z-voice/backend/internal/service/relay"
	"github.com/zhouzirui/z-voice/backend/internal/service/session"
	"github.com/zhouzirui/z-voice/backend/internal/service/speech"
)

func registerServices(di *do.Injector) {
	do.Provide(di, newCounter)
	do.Provide(di, newObserver)
	do.Provide(di, newStore)
	do.Provide(di, newGateway)
	do.Provide(di, newChatService)
	do.Provide(di, newRelay)
	do.Provide(di, newSpeechService)
	do.Provide(di, newVoicePipeline)
	do.Provide(di, newConsumer)
}

func newCounter(_ *do.Injector) (*observability.Counter, error) {
	return observability.NewCounter(), nil
}

func newObserver(di *do.Injector) (observability.Observer, error) {
	return observability.NewMultiObserver(
		observability.NewSlogObserver(slog.Default()),
		do.MustInvoke[*observability.Counter](di),
	), nil
}

func newStore(_ *do.Injector) (*session.Store, error) {
	return session.NewStore(), nil
}

func newGateway(di *do.Injector) (ai.Gateway, error) {
	cfg := do.MustInvoke[*config.Config](di)
	return ai.NewGateway(do.MustInvoke[context.Context](di), cfg.AI)
}

func newChatService(di *do.Injector) (*chat.Service, error) {
	cfg := do.MustInvoke[*config.Config](di)
	return chat.NewService(
		do.MustInvoke[*session.Store](di),
		do.MustInvoke[ai.Gateway](di),
		chat.WithObserver(do.MustInvoke[observability.Observer](di)),
		chat.WithModelTimeout(cfg.Chat.ModelTimeout),
	), nil
}

func newRelay(di *do.Injector) (*relay.Relay, error) {
	cfg := do.MustInvoke[*config.Config](di)
	return relay.New(cfg.Relay.Capacity, do.MustInvoke[observability.Observer](di)), nil
}

func newSpeechService(di *do.Injector) (*speech.Service, error) {
	cfg := do.MustInvoke[*config.Config](di)
	if !cfg.Speech.Enabled {
		slog.Info("speech credentials not configured, voice features disabled")
		return nil, nil
	}
	return speech.NewService(cfg.Speech), nil
}

func newVoicePipeline(di *do.Injector) (*speech.VoicePipeline, error) {
	speechSvc := do.MustInvoke[*speech.Service](di)
	if speechSvc == nil {
		return nil, nil
	}
	return speech.NewVoicePipeline(
		speechSvc,
		speechSvc,
		do.MustInvoke[*chat.Service](di),
		do.MustInvoke[*relay.Relay](di),
	), nil
}

func newConsumer(di *do.Injector) (*relay.Consumer, error) {
	cfg := do.MustInvoke[*config.Config](di)

	sinks := relay.MultiSink{relay.LogSink{PreviewLen: 80}}
	if speechSvc := do.MustInvoke[*speech.Service](di); speechSvc != nil && cfg.Relay.AudioDir != "" {
		sinks = append(sinks, relay.SpeechSink{Synth: speechSvc, Dir: cfg.Relay.AudioDir})
	}
	return relay.NewConsumer(do.MustInvoke[*relay.Relay](di), sinks, cfg.Relay.PollInterval), nil
}

func speechServiceOrNil(di *do.Injector) *speech.Service {
	return do.MustInvoke[*speech.Service](di)
}

func voicePipelineOrNil(di *do.Injector) *speech.VoicePipeline {
	return do.MustInvoke[*speech.VoicePipeline](di)
}
