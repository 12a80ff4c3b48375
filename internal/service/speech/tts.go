package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/z-voice/backend/internal/config"
	speechmodel "github.com/zhouzirui/z-voice/backend/internal/model/speech"
)

const (
	defaultSpeechHost = "wss://openspeech.bytedance.com"
	ttsPath           = "/api/v3/tts/unidirectional/stream"
	defaultVoice      = "en_female_amy_jupiter_bigtts"

	ttsResourceDefault = "volc.service_type.10029"
	ttsResourceMega    = "volc.megatts.default"
	ttsResourceSeed    = "seed-tts-2.0"
)

var errResourceMismatch = errors.New("resource id does not match speaker")

// TTSClient synthesizes speech over the Volcengine unidirectional stream.
type TTSClient struct {
	cfg    config.SpeechConfig
	url    string
	dialer *websocket.Dialer
}

func NewTTSClient(cfg config.SpeechConfig) *TTSClient {
	return &TTSClient{
		cfg:    cfg,
		url:    speechHost(cfg) + ttsPath,
		dialer: &websocket.Dialer{HandshakeTimeout: 30 * time.Second},
	}
}

func speechHost(cfg config.SpeechConfig) string {
	if host := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); host != "" {
		return host
	}
	return defaultSpeechHost
}

type ttsRequestBody struct {
	User struct {
		UID string `json:"uid"`
	} `json:"user"`
	ReqParams struct {
		Speaker     string        `json:"speaker"`
		Text        string        `json:"text"`
		AudioParams ttsAudioParam `json:"audio_params"`
		Additions   string        `json:"additions,omitempty"`
		Language    string        `json:"language,omitempty"`
	} `json:"req_params"`
}

type ttsAudioParam struct {
	Format          string  `json:"format"`
	SampleRate      int     `json:"sample_rate"`
	EnableTimestamp bool    `json:"enable_timestamp"`
	SpeedRatio      float32 `json:"speed_ratio,omitempty"`
	VolumeRatio     float32 `json:"volume_ratio,omitempty"`
	Emotion         string  `json:"emotion,omitempty"`
	EmotionScale    float32 `json:"emotion_scale,omitempty"`
}

type ttsServerMessage struct {
	ReqID    string `json:"reqid"`
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Sequence int    `json:"sequence"`
	Data     string `json:"data"`
	Addition struct {
		Duration string `json:"duration,omitempty"`
	} `json:"addition,omitempty"`
}

// Synthesize tries each speaker candidate against each compatible resource id
// and returns the first successful synthesis.
func (c *TTSClient) Synthesize(ctx context.Context, req *speechmodel.TTSRequest) (*speechmodel.TTSResponse, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, errors.New("tts text is empty")
	}
	appKey, token, err := resolveCredentials(c.cfg)
	if err != nil {
		return nil, err
	}

	encoding := normalizeTTSFormat(req.Format)
	speakers := resolveSpeakerCandidates(req.Voice, c.cfg.TTSVoice)

	var lastErr error
	for _, speaker := range speakers {
		for _, resourceID := range resolveResourceCandidates(speaker) {
			resp, err := c.synthesizeOnce(ctx, req, appKey, token, speaker, encoding, resourceID)
			if err == nil {
				return resp, nil
			}
			if !errors.Is(err, errResourceMismatch) {
				return nil, err
			}
			slog.Warn("[tts] resource mismatch, trying next", "speaker", speaker, "resource", resourceID)
			lastErr = err
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no speaker candidates for voice %q", req.Voice)
	}
	return nil, lastErr
}

func (c *TTSClient) synthesizeOnce(ctx context.Context, req *speechmodel.TTSRequest, appKey, token, speaker, encoding, resourceID string) (*speechmodel.TTSResponse, error) {
	connectID := uuid.NewString()
	header := http.Header{}
	header.Set("X-Api-App-Key", appKey)
	header.Set("X-Api-Access-Key", token)
	header.Set("X-Api-Resource-Id", resourceID)
	header.Set("X-Api-Connect-Id", connectID)

	conn, resp, err := c.dialer.DialContext(ctx, c.url, header)
	if err != nil {
		return nil, fmt.Errorf("dial tts: %w", err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if resp != nil {
		if logID := resp.Header.Get("X-Tt-Logid"); logID != "" {
			slog.Debug("[tts] connected", "logid", logID)
		}
	}

	body, uid := c.buildRequest(req, speaker, encoding)
	payload, err := sonic.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal tts request: %w", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, EncodeFrame(NewClientRequest(payload, NoCompression))); err != nil {
		return nil, fmt.Errorf("send tts request: %w", err)
	}

	var (
		audio    bytes.Buffer
		reqID    string
		duration int64
	)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("read tts response: %w", err)
		}

		frame, err := DecodeFrame(data)
		if err != nil {
			return nil, fmt.Errorf("decode tts frame: %w", err)
		}
		payload, err := frame.DecodePayload()
		if err != nil {
			return nil, fmt.Errorf("decode tts payload: %w", err)
		}

		switch frame.Type {
		case ErrorMessage:
			return nil, classifyTTSError(frame.ErrorCode, string(payload))

		case AudioOnlyServerResponse:
			audio.Write(payload)
			if !frame.IsLast() {
				continue
			}

		case FullServerResponse:
			var msg ttsServerMessage
			if len(payload) > 0 {
				if err := sonic.Unmarshal(payload, &msg); err != nil {
					slog.Warn("[tts] unreadable server payload", "error", err)
				}
			}
			if msg.Code != 0 && msg.Code != 3000 {
				return nil, classifyTTSError(uint32(msg.Code), msg.Message)
			}
			if msg.ReqID != "" {
				reqID = msg.ReqID
			}
			if msg.Addition.Duration != "" {
				if ms, err := strconv.ParseInt(msg.Addition.Duration, 10, 64); err == nil {
					duration = ms
				}
			}
			if msg.Data != "" {
				chunk, err := base64.StdEncoding.DecodeString(msg.Data)
				if err != nil {
					return nil, fmt.Errorf("decode tts audio chunk: %w", err)
				}
				audio.Write(chunk)
			}

			finished := (frame.hasEvent() && frame.Event == EventSessionFinished) || frame.IsLast() || msg.Sequence < 0
			if !finished {
				continue
			}

		default:
			slog.Debug("[tts] ignoring frame", "type", frame.Type)
			continue
		}

		if audio.Len() == 0 {
			return nil, errors.New("tts returned no audio")
		}
		if reqID == "" {
			reqID = connectID
		}
		return &speechmodel.TTSResponse{
			SessionID: uid,
			AudioData: audio.Bytes(),
			Duration:  duration,
			Format:    encoding,
			RequestID: reqID,
			CreatedAt: time.Now().UTC(),
		}, nil
	}
}

func classifyTTSError(code uint32, message string) error {
	err := fmt.Errorf("tts error %d: %s", code, message)
	if strings.Contains(message, "resource ID is mismatched") {
		return fmt.Errorf("%w: %w", errResourceMismatch, err)
	}
	return err
}

func (c *TTSClient) buildRequest(req *speechmodel.TTSRequest, speaker, encoding string) (*ttsRequestBody, string) {
	body := &ttsRequestBody{}

	uid := strings.TrimSpace(req.SessionID)
	if uid == "" {
		uid = uuid.NewString()
	}
	body.User.UID = uid

	body.ReqParams.Speaker = speaker
	body.ReqParams.Text = req.Text
	body.ReqParams.AudioParams = ttsAudioParam{
		Format:          encoding,
		SampleRate:      24000,
		EnableTimestamp: true,
	}

	speed := req.Speed
	if speed <= 0 {
		speed = c.cfg.TTSSpeed
	}
	if speed > 0 && speed != 1 {
		body.ReqParams.AudioParams.SpeedRatio = speed
	}

	volume := req.Volume
	if volume <= 0 {
		volume = c.cfg.TTSVolume
	}
	if volume > 0 && volume != 1 {
		body.ReqParams.AudioParams.VolumeRatio = volume
	}

	if emotion := strings.TrimSpace(req.Emotion); emotion != "" && emotion != "neutral" {
		body.ReqParams.AudioParams.Emotion = emotion
		body.ReqParams.AudioParams.EmotionScale = req.EmotionScale
	}

	language := strings.TrimSpace(req.Language)
	if language == "" {
		language = strings.TrimSpace(c.cfg.TTSLanguage)
	}
	body.ReqParams.Language = language
	body.ReqParams.Additions = `{"disable_markdown_filter":false}`

	return body, uid
}

// the stream endpoint has no wav output
func normalizeTTSFormat(format string) string {
	switch f := strings.ToLower(strings.TrimSpace(format)); f {
	case "", "wav":
		return "mp3"
	default:
		return f
	}
}

var seedVoiceHints = []string{
	"bigtts", "seed", "megatts", "uranus", "venus", "jupiter",
	"saturn", "neptune", "mercury", "pluto", "mars",
}

// resolveResourceCandidates orders resource ids by how likely they are to
// host the speaker. Cloned voices (S_ prefix) only live on the mega resource.
func resolveResourceCandidates(voice string) []string {
	voice = strings.TrimSpace(voice)
	if strings.HasPrefix(voice, "S_") {
		return []string{ttsResourceMega}
	}

	normalized := strings.ToLower(voice)
	for _, hint := range seedVoiceHints {
		if strings.Contains(normalized, hint) {
			return []string{ttsResourceSeed, ttsResourceDefault}
		}
	}
	return []string{ttsResourceDefault, ttsResourceSeed}
}

var voiceAliases = map[string]string{
	"en_default": defaultVoice,
	"zh_default": "zh_female_vv_uranus_bigtts",
}

// resolveSpeakerCandidates returns requested then fallback, deduplicated
// case-insensitively, with aliases expanded. "default" means the fallback.
func resolveSpeakerCandidates(requested, fallback string) []string {
	fallback = strings.TrimSpace(fallback)
	if fallback == "" {
		fallback = defaultVoice
	}

	var candidates []string
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" || strings.EqualFold(s, "default") {
			return
		}
		if mapped, ok := voiceAliases[strings.ToLower(s)]; ok {
			s = mapped
		}
		for _, existing := range candidates {
			if strings.EqualFold(existing, s) {
				return
			}
		}
		candidates = append(candidates, s)
	}

	add(requested)
	add(fallback)
	return candidates
}
