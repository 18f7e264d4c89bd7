package gemini

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"google.golang.org/genai"

	"github.com/mojiokoshi/transcriber/internal/httpclient"
	"github.com/mojiokoshi/transcriber/internal/metrics"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com"
	apiVersion     = "v1beta"
	providerName   = "Gemini"
)

var (
	ErrNoCandidates  = errors.New("no candidates in Gemini response")
	ErrEmptyResponse = errors.New("empty text in Gemini response")
)

// BlockedError is returned when the prompt was rejected by safety filters.
type BlockedError struct {
	Reason string
}

func (e *BlockedError) Error() string {
	return "Gemini blocked the prompt: " + e.Reason
}

// Client wraps the genai SDK with per-call metrics and the instrumented
// HTTP transport.
type Client struct {
	config genai.ClientConfig

	once sync.Once
	sdk  *genai.Client
	err  error
}

func NewClient(apiKey, baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		config: genai.ClientConfig{
			APIKey:     apiKey,
			Backend:    genai.BackendGeminiAPI,
			HTTPClient: httpclient.NewInstrumentedClient(timeout),
			HTTPOptions: genai.HTTPOptions{
				BaseURL:    strings.TrimSuffix(baseURL, "/") + "/",
				APIVersion: apiVersion,
			},
		},
	}
}

// sdkClient builds the SDK client on first use. Construction only validates
// the config, so the error is returned from every later call.
func (c *Client) sdkClient(ctx context.Context) (*genai.Client, error) {
	c.once.Do(func() {
		cfg := c.config
		c.sdk, c.err = genai.NewClient(ctx, &cfg)
	})
	return c.sdk, c.err
}

// UploadFile sends a local file through the resumable upload protocol.
func (c *Client) UploadFile(ctx context.Context, path, mimeType, displayName string) (*genai.File, error) {
	defer recordCall(ctx, "upload", time.Now())
	ctx = httpclient.WithOperation(httpclient.WithProvider(ctx, providerName), "upload")

	sdk, err := c.sdkClient(ctx)
	if err != nil {
		return nil, err
	}
	return sdk.Files.UploadFromPath(ctx, path, &genai.UploadFileConfig{
		MIMEType:    mimeType,
		DisplayName: displayName,
	})
}

// GetFile reads the file metadata, including its processing state.
func (c *Client) GetFile(ctx context.Context, name string) (*genai.File, error) {
	defer recordCall(ctx, "get_file", time.Now())
	ctx = httpclient.WithOperation(httpclient.WithProvider(ctx, providerName), "get_file")

	sdk, err := c.sdkClient(ctx)
	if err != nil {
		return nil, err
	}
	return sdk.Files.Get(ctx, name, nil)
}

func (c *Client) DeleteFile(ctx context.Context, name string) error {
	defer recordCall(ctx, "delete_file", time.Now())
	ctx = httpclient.WithOperation(httpclient.WithProvider(ctx, providerName), "delete_file")

	sdk, err := c.sdkClient(ctx)
	if err != nil {
		return err
	}
	_, err = sdk.Files.Delete(ctx, name, nil)
	return err
}

// GenerateContent asks model to run prompt over an uploaded file and returns
// the concatenated text parts of the first candidate.
func (c *Client) GenerateContent(ctx context.Context, model, prompt, fileURI, mimeType string) (string, error) {
	defer recordCall(ctx, "generate", time.Now())
	ctx = httpclient.WithOperation(httpclient.WithProvider(ctx, providerName), "generate")

	sdk, err := c.sdkClient(ctx)
	if err != nil {
		return "", err
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromURI(fileURI, mimeType),
			genai.NewPartFromText(prompt),
		}, genai.RoleUser),
	}
	resp, err := sdk.Models.GenerateContent(ctx, strings.TrimPrefix(model, "models/"), contents, nil)
	if err != nil {
		return "", err
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", &BlockedError{Reason: string(resp.PromptFeedback.BlockReason)}
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrNoCandidates
	}

	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p == nil || p.Thought {
			continue
		}
		sb.WriteString(p.Text)
	}
	if sb.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return sb.String(), nil
}

func recordCall(ctx context.Context, operation string, start time.Time) {
	attrs := metric.WithAttributes(
		attribute.String("provider", "gemini"),
		attribute.String("operation", operation),
	)
	metrics.ExternalAPIDuration.Record(ctx, time.Since(start).Seconds(), attrs)
	metrics.ExternalAPICallsTotal.Add(ctx, 1, attrs)
}
