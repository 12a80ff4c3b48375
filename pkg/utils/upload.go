package utils

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
)

// MaxAudioBytes bounds uploaded audio.
const MaxAudioBytes = 32 << 20

var ErrAudioRequired = errors.New("audio file is required")

// AudioUpload is an audio file read from a multipart form.
type AudioUpload struct {
	Data   []byte
	Format string
}

// ReadAudioUpload parses the multipart form and reads the "audio" part. An
// explicit "format" field wins over the file extension.
func ReadAudioUpload(w http.ResponseWriter, r *http.Request) (*AudioUpload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxAudioBytes+1<<20)
	if err := r.ParseMultipartForm(MaxAudioBytes); err != nil {
		return nil, fmt.Errorf("failed to parse multipart form: %w", err)
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		return nil, ErrAudioRequired
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrAudioRequired
	}

	format := strings.ToLower(strings.TrimSpace(r.FormValue("format")))
	if format == "" {
		format = InferAudioFormat(header.Filename)
	}
	return &AudioUpload{Data: data, Format: format}, nil
}

// InferAudioFormat maps a file extension to a recognizer format name.
func InferAudioFormat(filename string) string {
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".mp3", ".wav", ".webm", ".m4a", ".aac", ".ogg", ".pcm":
		return strings.TrimPrefix(ext, ".")
	case ".ulaw", ".ul", ".mulaw":
		return "ulaw"
	case ".alaw", ".al":
		return "alaw"
	default:
		return "wav"
	}
}
