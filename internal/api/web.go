package api

import (
	"embed"
	"html/template"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mojiokoshi/transcriber/internal/cache"
	apperrors "github.com/mojiokoshi/transcriber/internal/errors"
	"github.com/mojiokoshi/transcriber/internal/services/transcription"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

type meetingOption struct {
	Type     transcription.MeetingType
	Title    string
	Selected bool
}

type formLine struct {
	Fields []formField
}

type formField struct {
	transcription.FormField
	Value string
}

type formPage struct {
	Title        string
	MeetingType  transcription.MeetingType
	MeetingTypes []meetingOption
	Lines        []formLine
	Models       []string
	Model        string
	Accept       string
	ShowAPIKey   bool
	Error        string
}

type resultPage struct {
	Title       string
	Text        string
	FileName    string
	DownloadURL string
	MeetingType transcription.MeetingType
}

// acceptList is the file input's accept attribute, e.g. ".mp3,.m4a,.wav".
func acceptList() string {
	formats := transcription.SupportedFormats()
	exts := make([]string, 0, len(formats))
	for _, f := range formats {
		exts = append(exts, f.Extension())
	}
	return strings.Join(exts, ",")
}

func (s *Server) newFormPage(layout transcription.FormLayout, values map[string]string, model string) formPage {
	page := formPage{
		Title:       layout.Title,
		MeetingType: layout.Type,
		Models:      s.cfg.Transcription.Models,
		Model:       model,
		Accept:      acceptList(),
		ShowAPIKey:  s.cfg.GeminiAPIKey == "",
	}
	if page.Model == "" {
		page.Model = s.cfg.Transcription.DefaultModel
	}
	for _, t := range transcription.MeetingTypes() {
		l, _ := transcription.LookupLayout(t)
		page.MeetingTypes = append(page.MeetingTypes, meetingOption{Type: t, Title: l.Title, Selected: t == layout.Type})
	}
	for _, line := range layout.Lines {
		fl := formLine{}
		for _, f := range line {
			fl.Fields = append(fl.Fields, formField{FormField: f, Value: values[f.Key]})
		}
		page.Lines = append(page.Lines, fl)
	}
	return page
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data interface{}) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := templates.ExecuteTemplate(w, name, data); err != nil {
		slog.ErrorContext(r.Context(), "Failed to render template", "template", name, "error", err)
	}
}

// HandleForm renders the upload form for ?type= (default support).
func (s *Server) HandleForm(w http.ResponseWriter, r *http.Request) {
	layout, ok := transcription.LookupLayout(transcription.MeetingType(r.URL.Query().Get("type")))
	if !ok {
		layout, _ = transcription.LookupLayout(transcription.DefaultMeetingType)
	}
	s.render(w, r, http.StatusOK, "form.html", s.newFormPage(layout, nil, ""))
}

// HandleTranscribe runs one transcription inside the request and renders the
// result page with a download link.
func (s *Server) HandleTranscribe(w http.ResponseWriter, r *http.Request) {
	u, err := parseUpload(w, r, s.cfg)
	if err != nil {
		s.renderFormError(w, r, u, err)
		return
	}

	apiKey := s.cfg.GeminiAPIKey
	if apiKey == "" {
		apiKey = u.APIKey
	}
	if apiKey == "" {
		s.renderFormError(w, r, u, apperrors.NewMissingCredentialError("Gemini API key is not configured"))
		return
	}

	result, err := s.newTranscriber(apiKey).SubmitWithProgress(r.Context(), u.request(), nil)
	if err != nil {
		s.renderFormError(w, r, u, err)
		return
	}

	id := uuid.NewString()
	fileName := transcription.OutputFileName(u.FileName, transcription.VariantWeb)
	if err := s.transcripts.Set(r.Context(), id, &cache.CachedTranscript{FileName: fileName, Text: result.Composed}); err != nil {
		slog.ErrorContext(r.Context(), "Failed to store transcript", "error", err)
		s.renderFormError(w, r, u, apperrors.NewInternalError("failed to store transcript", err))
		return
	}

	s.render(w, r, http.StatusOK, "result.html", resultPage{
		Title:       u.Layout.Title,
		Text:        result.Composed,
		FileName:    fileName,
		DownloadURL: "/download/" + id,
		MeetingType: u.MeetingType,
	})
}

func (s *Server) renderFormError(w http.ResponseWriter, r *http.Request, u *upload, err error) {
	appErr, ok := apperrors.As(err)
	if !ok {
		appErr = apperrors.NewInternalError("unexpected error", err)
	}
	if appErr.StatusCode >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "Transcription request failed", "code", appErr.Code(), "error", err)
	}

	layout := u.Layout
	if layout.Type == "" {
		layout, _ = transcription.LookupLayout(transcription.DefaultMeetingType)
	}
	page := s.newFormPage(layout, u.Values, u.Model)
	page.Error = appErr.UserMessage()
	s.render(w, r, appErr.StatusCode, "form.html", page)
}

// HandleDownload serves a stored transcript as a text attachment.
func (s *Server) HandleDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		http.Error(w, "Transcript not found", http.StatusNotFound)
		return
	}

	t, err := s.transcripts.Get(r.Context(), id)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to read transcript", "id", id, "error", err)
		http.Error(w, "Failed to read transcript", http.StatusInternalServerError)
		return
	}
	if t == nil {
		http.Error(w, "Transcript not found or expired", http.StatusNotFound)
		return
	}

	writeTextAttachment(w, t.FileName, t.Text)
}

func writeTextAttachment(w http.ResponseWriter, fileName, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": fileName}))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(text))
}
