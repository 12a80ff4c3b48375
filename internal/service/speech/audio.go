package speech

import (
	"strings"

	"github.com/zaf/g711"
)

// normalizeAudio converts telephony G.711 input into 16-bit linear PCM, which
// the recognizer accepts directly. Other formats pass through untouched.
func normalizeAudio(data []byte, format string) ([]byte, string) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "ulaw", "mulaw", "pcmu", "g711u":
		return g711.DecodeUlaw(data), "pcm"
	case "alaw", "pcma", "g711a":
		return g711.DecodeAlaw(data), "pcm"
	case "":
		return data, "wav"
	default:
		return data, strings.ToLower(format)
	}
}
