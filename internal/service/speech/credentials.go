package speech

import (
	"errors"
	"strings"

	"github.com/zhouzirui/z-voice/backend/internal/config"
)

// ErrSpeechDisabled is returned when no Volcengine credentials are set.
var ErrSpeechDisabled = errors.New("speech service is not configured: set SPEECH_APP_ID and SPEECH_ACCESS_TOKEN")

// resolveCredentials returns the app key and access token, accepting the
// legacy API key as the token.
func resolveCredentials(cfg config.SpeechConfig) (string, string, error) {
	appID := strings.TrimSpace(cfg.AppID)
	token := strings.TrimSpace(cfg.AccessToken)
	if token == "" {
		token = strings.TrimSpace(cfg.APIKey)
	}
	if appID == "" || token == "" {
		return "", "", ErrSpeechDisabled
	}
	return appID, token, nil
}
