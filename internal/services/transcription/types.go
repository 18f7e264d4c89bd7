package transcription

import (
	"path/filepath"
	"strings"

	"github.com/mojiokoshi/transcriber/internal/errors"
)

// AudioFormat is one of the accepted upload formats.
type AudioFormat string

const (
	FormatMP3 AudioFormat = "mp3"
	FormatM4A AudioFormat = "m4a"
	FormatWAV AudioFormat = "wav"
)

var formatMIMETypes = map[AudioFormat]string{
	FormatMP3: "audio/mpeg",
	FormatM4A: "audio/mp4",
	FormatWAV: "audio/wav",
}

// SupportedFormats lists the accepted formats in display order.
func SupportedFormats() []AudioFormat {
	return []AudioFormat{FormatMP3, FormatM4A, FormatWAV}
}

func (f AudioFormat) Valid() bool {
	_, ok := formatMIMETypes[f]
	return ok
}

func (f AudioFormat) MIMEType() string {
	return formatMIMETypes[f]
}

// Extension returns the file extension including the dot.
func (f AudioFormat) Extension() string {
	return "." + string(f)
}

// ParseAudioFormat detects the format from a file name's extension.
func ParseAudioFormat(filename string) (AudioFormat, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	f := AudioFormat(ext)
	if !f.Valid() {
		return "", errors.NewValidationError(
			"unsupported audio format: "+filename,
			"UNSUPPORTED_AUDIO_FORMAT",
			"Upload an mp3, m4a or wav file.",
		)
	}
	return f, nil
}

// Request is one transcription job. It is not modified after Submit.
type Request struct {
	Audio    []byte
	Format   AudioFormat
	FileName string
	Model    string
	// Prompt defaults to ai.TranscriptionPrompt when empty.
	Prompt string
	Header Header
}

// Result is the composed transcript handed back to the caller.
type Result struct {
	Body       string
	HeaderText string
	HasHeader  bool
	Composed   string
}
