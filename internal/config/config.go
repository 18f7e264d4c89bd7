package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultModels is the fixed list of selectable Gemini models.
var DefaultModels = []string{
	"gemini-2.0-flash",
	"gemini-2.5-flash-lite",
	"gemini-2.5-flash",
	"gemini-2.5-pro",
	"gemini-3-pro",
}

const (
	DefaultModel       = "gemini-2.5-pro"
	DefaultSecretsFile = ".streamlit/secrets.toml"
	DefaultConfigFile  = "config.yaml"
	CredentialEnvKey   = "GEMINI_API_KEY"
)

type Config struct {
	Env            string
	ServiceName    string
	ServiceVersion string

	Port string

	// GeminiAPIKey is resolved once at startup; CredentialSource names where it came from.
	GeminiAPIKey     string
	CredentialSource string
	GeminiBaseURL    string
	SecretsFile      string

	DatabaseURL string
	RedisURL    string

	AuthJWTSecret string
	AuthJWTIssuer string

	OtelExporterOTLPEndpoint string
	OtelExporterOTLPHeaders  string
	SentryDSN                string

	TempDir     string
	MaxUploadMB int

	Transcription TranscriptionConfig
}

type TranscriptionConfig struct {
	DefaultModel    string        `yaml:"default_model"`
	Models          []string      `yaml:"models"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	PollMaxAttempts int           `yaml:"poll_max_attempts"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ResultTTL       time.Duration `yaml:"result_ttl"`
}

// TaskTimeout bounds one queued job: an upload and a generation request,
// the whole polling budget, and a minute for temp file and remote cleanup.
func (t TranscriptionConfig) TaskTimeout() time.Duration {
	return 2*t.RequestTimeout + time.Duration(t.PollMaxAttempts)*t.PollInterval + time.Minute
}

func Load() (*Config, error) {
	cfg := &Config{
		Env:                      os.Getenv("ENV"),
		ServiceName:              os.Getenv("SERVICE_NAME"),
		ServiceVersion:           os.Getenv("SERVICE_VERSION"),
		Port:                     os.Getenv("PORT"),
		GeminiBaseURL:            os.Getenv("GEMINI_BASE_URL"),
		SecretsFile:              os.Getenv("SECRETS_FILE"),
		DatabaseURL:              os.Getenv("DATABASE_URL"),
		RedisURL:                 os.Getenv("REDIS_URL"),
		AuthJWTSecret:            os.Getenv("AUTH_JWT_SECRET"),
		AuthJWTIssuer:            os.Getenv("AUTH_JWT_ISSUER"),
		OtelExporterOTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		OtelExporterOTLPHeaders:  os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"),
		SentryDSN:                os.Getenv("SENTRY_DSN"),
		TempDir:                  os.Getenv("TEMP_DIR"),
	}

	if raw := os.Getenv("MAX_UPLOAD_MB"); raw != "" {
		mb, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid MAX_UPLOAD_MB %q: %w", raw, err)
		}
		cfg.MaxUploadMB = mb
	}

	configFile := os.Getenv("CONFIG_FILE")
	if configFile == "" {
		configFile = DefaultConfigFile
	}
	if err := cfg.LoadFromYAML(configFile); err != nil {
		return nil, fmt.Errorf("failed to load YAML config: %w", err)
	}

	cfg.SetDefaults()
	cfg.SetTranscriptionDefaults()

	key, source, err := ResolveCredential(
		EnvSource{Key: CredentialEnvKey},
		SecretsFileSource{Path: cfg.SecretsFile, Key: CredentialEnvKey},
	)
	if err != nil && !IsMissingCredential(err) {
		return nil, err
	}
	cfg.GeminiAPIKey = key
	cfg.CredentialSource = source

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) LoadFromYAML(path string) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // File not found is not an error
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var yamlConfig struct {
		Transcription TranscriptionConfig `yaml:"transcription"`
	}

	if err := yaml.Unmarshal(data, &yamlConfig); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	t := yamlConfig.Transcription
	if t.DefaultModel != "" {
		c.Transcription.DefaultModel = t.DefaultModel
	}
	if len(t.Models) > 0 {
		c.Transcription.Models = t.Models
	}
	if t.PollInterval > 0 {
		c.Transcription.PollInterval = t.PollInterval
	}
	if t.PollMaxAttempts > 0 {
		c.Transcription.PollMaxAttempts = t.PollMaxAttempts
	}
	if t.RequestTimeout > 0 {
		c.Transcription.RequestTimeout = t.RequestTimeout
	}
	if t.ResultTTL > 0 {
		c.Transcription.ResultTTL = t.ResultTTL
	}

	return nil
}

func (c *Config) SetDefaults() {
	if c.Env == "" {
		c.Env = "development"
	}
	if c.ServiceName == "" {
		c.ServiceName = "mojiokoshi-transcriber"
	}
	if c.ServiceVersion == "" {
		c.ServiceVersion = "1.0.0"
	}
	if c.Port == "" {
		c.Port = "8080"
	}
	if c.GeminiBaseURL == "" {
		c.GeminiBaseURL = "https://generativelanguage.googleapis.com"
	}
	if c.SecretsFile == "" {
		c.SecretsFile = DefaultSecretsFile
	}
	if c.TempDir == "" {
		c.TempDir = os.TempDir()
	}
	if c.MaxUploadMB == 0 {
		c.MaxUploadMB = 50
	}
}

func (c *Config) SetTranscriptionDefaults() {
	if len(c.Transcription.Models) == 0 {
		c.Transcription.Models = slices.Clone(DefaultModels)
	}
	if c.Transcription.DefaultModel == "" {
		c.Transcription.DefaultModel = DefaultModel
	}
	if c.Transcription.PollInterval == 0 {
		c.Transcription.PollInterval = time.Second
	}
	if c.Transcription.PollMaxAttempts == 0 {
		c.Transcription.PollMaxAttempts = 600
	}
	if c.Transcription.RequestTimeout == 0 {
		c.Transcription.RequestTimeout = 10 * time.Minute
	}
	if c.Transcription.ResultTTL == 0 {
		c.Transcription.ResultTTL = time.Hour
	}
}

// HasModel reports whether model is one of the selectable models.
func (c TranscriptionConfig) HasModel(model string) bool {
	return slices.Contains(c.Models, model)
}

// AsyncEnabled reports whether the queue-backed API can be mounted.
func (c *Config) AsyncEnabled() bool {
	return c.RedisURL != "" && c.DatabaseURL != ""
}

// MaxUploadBytes is the request body limit for audio uploads.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

// OTLPHeaders parses OTEL_EXPORTER_OTLP_HEADERS ("k1=v1,k2=v2").
func (c *Config) OTLPHeaders() map[string]string {
	if c.OtelExporterOTLPHeaders == "" {
		return nil
	}
	headers := make(map[string]string)
	for _, pair := range strings.Split(c.OtelExporterOTLPHeaders, ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		headers[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return headers
}

// RequireCredential fails with a MissingCredential error when no key was resolved.
func (c *Config) RequireCredential() error {
	if c.GeminiAPIKey == "" {
		return errMissingCredential()
	}
	return nil
}

func (c *Config) validate() error {
	if !c.Transcription.HasModel(c.Transcription.DefaultModel) {
		return fmt.Errorf("default model %q is not in the model list", c.Transcription.DefaultModel)
	}
	if c.Transcription.PollMaxAttempts < 0 {
		return fmt.Errorf("poll_max_attempts must be positive")
	}
	if c.MaxUploadMB < 0 {
		return fmt.Errorf("MAX_UPLOAD_MB must be positive")
	}
	if (c.RedisURL == "") != (c.DatabaseURL == "") {
		return fmt.Errorf("REDIS_URL and DATABASE_URL must be set together")
	}
	return nil
}
