package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/elliotchance/pie/v2"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/z-voice/backend/internal/config"
	speechmodel "github.com/zhouzirui/z-voice/backend/internal/model/speech"
)

const (
	asrPath = "/api/v3/sauc/bigmodel_nostream"

	asrResourceDuration   = "volc.bigasr.sauc.duration"
	asrResourceConcurrent = "volc.bigasr.sauc.concurrent"

	// 200ms of 16kHz 16-bit mono audio
	asrChunkSize     = 6400
	asrChunkInterval = 200 * time.Millisecond
)

// ASRClient transcribes a complete utterance over the Volcengine streaming
// recognizer, pacing audio at real time.
type ASRClient struct {
	cfg           config.SpeechConfig
	url           string
	dialer        *websocket.Dialer
	chunkInterval time.Duration
}

func NewASRClient(cfg config.SpeechConfig) *ASRClient {
	return &ASRClient{
		cfg:           cfg,
		url:           speechHost(cfg) + asrPath,
		dialer:        &websocket.Dialer{HandshakeTimeout: 30 * time.Second},
		chunkInterval: asrChunkInterval,
	}
}

type asrRequestBody struct {
	User struct {
		UID string `json:"uid,omitempty"`
	} `json:"user"`
	Audio struct {
		Language string `json:"language,omitempty"`
		Format   string `json:"format"`
		Codec    string `json:"codec,omitempty"`
		Rate     int    `json:"rate,omitempty"`
		Bits     int    `json:"bits,omitempty"`
		Channel  int    `json:"channel,omitempty"`
	} `json:"audio"`
	Request struct {
		ModelName      string `json:"model_name"`
		EnableITN      bool   `json:"enable_itn,omitempty"`
		EnablePunc     bool   `json:"enable_punc,omitempty"`
		ShowUtterances bool   `json:"show_utterances,omitempty"`
		ResultType     string `json:"result_type,omitempty"`
		EndWindowSize  int    `json:"end_window_size,omitempty"`
	} `json:"request"`
}

type asrUtterance struct {
	Text      string `json:"text"`
	StartTime int64  `json:"start_time"`
	EndTime   int64  `json:"end_time"`
	Definite  bool   `json:"definite"`
}

type asrServerMessage struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Sequence int    `json:"sequence"`
	Result   struct {
		Text       string         `json:"text"`
		Utterances []asrUtterance `json:"utterances,omitempty"`
	} `json:"result,omitempty"`
	AudioInfo struct {
		Duration int64 `json:"duration"`
	} `json:"audio_info,omitempty"`
}

// Transcribe sends the whole utterance and waits for the final transcript.
func (c *ASRClient) Transcribe(ctx context.Context, req *speechmodel.ASRRequest) (*speechmodel.ASRResponse, error) {
	if len(req.AudioData) == 0 {
		return nil, errors.New("no audio data to transcribe")
	}
	appID, token, err := resolveCredentials(c.cfg)
	if err != nil {
		return nil, err
	}

	connectID := strings.TrimSpace(req.SessionID)
	if connectID == "" {
		connectID = uuid.NewString()
	}
	resourceID := asrResourceDuration
	if c.cfg.ConcurrentMode {
		resourceID = asrResourceConcurrent
	}

	header := http.Header{}
	header.Set("X-Api-App-Key", appID)
	header.Set("X-Api-Access-Key", token)
	header.Set("X-Api-Resource-Id", resourceID)
	header.Set("X-Api-Connect-Id", connectID)

	conn, resp, err := c.dialer.DialContext(ctx, c.url, header)
	if err != nil {
		return nil, fmt.Errorf("dial asr: %w", err)
	}
	defer conn.Close()

	if resp != nil {
		if logID := resp.Header.Get("X-Tt-Logid"); logID != "" {
			slog.Debug("[asr] connected", "logid", logID)
		}
	}

	payload, err := sonic.Marshal(c.buildRequest(req, connectID))
	if err != nil {
		return nil, fmt.Errorf("marshal asr request: %w", err)
	}
	compressed, err := compress(payload, GzipCompression)
	if err != nil {
		return nil, err
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, EncodeFrame(NewClientRequest(compressed, GzipCompression))); err != nil {
		return nil, fmt.Errorf("send asr request: %w", err)
	}

	// Audio goes out while results come back so an early server error stops
	// the upload.
	g, gctx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(gctx, func() { _ = conn.Close() })
	defer stop()

	var result *speechmodel.ASRResponse
	g.Go(func() error {
		return c.sendAudio(gctx, conn, req.AudioData)
	})
	g.Go(func() error {
		r, err := c.receive(gctx, conn, connectID)
		if err != nil {
			return err
		}
		result = r
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *ASRClient) buildRequest(req *speechmodel.ASRRequest, uid string) *asrRequestBody {
	body := &asrRequestBody{}
	body.User.UID = uid

	body.Audio.Format = req.Format
	if body.Audio.Format == "" {
		body.Audio.Format = "wav"
	}
	body.Audio.Language = req.Language
	if body.Audio.Language == "" {
		body.Audio.Language = c.cfg.ASRLanguage
	}
	body.Audio.Codec = "raw"
	body.Audio.Rate = 16000
	body.Audio.Bits = 16
	body.Audio.Channel = 1

	body.Request.ModelName = c.cfg.ASRModel
	if body.Request.ModelName == "" {
		body.Request.ModelName = "bigmodel"
	}
	body.Request.EnableITN = true
	body.Request.EnablePunc = true
	body.Request.ShowUtterances = true
	body.Request.ResultType = "full"
	body.Request.EndWindowSize = 800
	return body
}

func (c *ASRClient) sendAudio(ctx context.Context, conn *websocket.Conn, audio []byte) error {
	// sequence 1 belongs to the client request
	sequence := int32(2)
	for start := 0; start < len(audio); start += asrChunkSize {
		end := min(start+asrChunkSize, len(audio))
		last := end == len(audio)

		chunk, err := compress(audio[start:end], GzipCompression)
		if err != nil {
			return err
		}
		frame := NewAudioFrame(chunk, sequence, last, GzipCompression)
		if err := conn.WriteMessage(websocket.BinaryMessage, EncodeFrame(frame)); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("send audio chunk %d: %w", sequence, err)
		}
		sequence++

		if last || c.chunkInterval <= 0 {
			continue
		}
		select {
		case <-ctx.Done():
			// the receiver reports why
			return nil
		case <-time.After(c.chunkInterval):
		}
	}
	return nil
}

func (c *ASRClient) receive(ctx context.Context, conn *websocket.Conn, sessionID string) (*speechmodel.ASRResponse, error) {
	var (
		text     string
		duration int64
	)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("read asr response: %w", err)
		}

		frame, err := DecodeFrame(data)
		if err != nil {
			return nil, fmt.Errorf("decode asr frame: %w", err)
		}

		switch frame.Type {
		case ErrorMessage:
			payload, _ := frame.DecodePayload()
			return nil, fmt.Errorf("asr error %d: %s", frame.ErrorCode, string(payload))

		case FullServerResponse:
			payload, err := frame.DecodePayload()
			if err != nil {
				return nil, fmt.Errorf("decode asr payload: %w", err)
			}
			var msg asrServerMessage
			if err := sonic.Unmarshal(payload, &msg); err != nil {
				slog.Warn("[asr] unreadable server payload", "error", err)
				continue
			}
			if msg.Code != 0 && msg.Code != 20000000 {
				return nil, fmt.Errorf("asr error %d: %s", msg.Code, msg.Message)
			}

			candidate := msg.Result.Text
			if candidate == "" {
				candidate = joinUtterances(msg.Result.Utterances)
			}
			if candidate != "" {
				text = candidate
			}
			if msg.AudioInfo.Duration > 0 {
				duration = msg.AudioInfo.Duration
			}

			if frame.IsLast() || msg.Sequence < 0 {
				if text == "" {
					slog.Warn("[asr] empty transcript", "session_id", sessionID)
				}
				return &speechmodel.ASRResponse{
					SessionID:  sessionID,
					Text:       text,
					Confidence: estimateConfidence(text),
					Duration:   duration,
					RequestID:  sessionID,
					CreatedAt:  time.Now().UTC(),
				}, nil
			}
		}
	}
}

func joinUtterances(utterances []asrUtterance) string {
	texts := pie.Map(utterances, func(u asrUtterance) string { return strings.TrimSpace(u.Text) })
	return strings.Join(pie.Filter(texts, func(s string) bool { return s != "" }), " ")
}

// The recognizer does not report confidence.
func estimateConfidence(text string) float64 {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	return 0.95
}
