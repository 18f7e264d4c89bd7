package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/mojiokoshi/transcriber/internal/config"
	apperrors "github.com/mojiokoshi/transcriber/internal/errors"
	"github.com/mojiokoshi/transcriber/internal/services/transcription"
)

const multipartMemory = 8 << 20

// upload is a parsed multipart transcription form.
type upload struct {
	Audio       []byte
	FileName    string
	Format      transcription.AudioFormat
	Model       string
	MeetingType transcription.MeetingType
	Layout      transcription.FormLayout
	Values      map[string]string
	APIKey      string
}

func (u *upload) request() transcription.Request {
	return transcription.Request{
		Audio:    u.Audio,
		Format:   u.Format,
		FileName: u.FileName,
		Model:    u.Model,
		Header:   u.Layout.Header(u.Values),
	}
}

// parseUpload reads the audio file and metadata fields from a multipart form.
// Field values are kept even when parsing fails so forms can be re-rendered.
func parseUpload(w http.ResponseWriter, r *http.Request, cfg *config.Config) (*upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxUploadBytes())
	u := &upload{Values: map[string]string{}}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return u, apperrors.NewValidationError("audio file is too large", "UPLOAD_TOO_LARGE",
				"Upload a file smaller than the configured limit.")
		}
		return u, apperrors.NewValidationError("invalid upload form", "INVALID_FORM", "Submit the form again.")
	}

	u.MeetingType = transcription.MeetingType(r.FormValue("meeting_type"))
	layout, ok := transcription.LookupLayout(u.MeetingType)
	if !ok {
		return u, apperrors.NewValidationError("unknown meeting type", "UNKNOWN_MEETING_TYPE", "Choose a meeting type from the list.")
	}
	u.Layout = layout
	u.MeetingType = layout.Type
	for _, f := range layout.Fields() {
		u.Values[f.Key] = r.FormValue(f.Key)
	}

	u.Model = strings.TrimSpace(r.FormValue("model"))
	if u.Model == "" {
		u.Model = cfg.Transcription.DefaultModel
	}
	u.APIKey = strings.TrimSpace(r.FormValue("api_key"))

	file, header, err := r.FormFile("audio")
	if err != nil {
		return u, apperrors.NewValidationError("audio file is required", "MISSING_AUDIO", "Choose an mp3, m4a or wav file.")
	}
	defer file.Close()

	u.FileName = header.Filename
	u.Format, err = transcription.ParseAudioFormat(header.Filename)
	if err != nil {
		return u, err
	}

	u.Audio, err = io.ReadAll(file)
	if err != nil {
		return u, apperrors.NewLocalIOError("failed to read uploaded audio", "UPLOAD_READ_FAILED", err)
	}
	return u, nil
}
