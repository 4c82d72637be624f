package inference

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// ProviderGemini calls the Generative Language REST API with an api key.
	ProviderGemini = "gemini"
	// ProviderVertex calls Vertex AI through the genai SDK.
	ProviderVertex = "vertex"

	defaultModel           = "gemini-1.5-flash"
	defaultTemperature     = 0.1
	defaultMaxOutputTokens = 1000
)

// Config selects and configures the provider behind a Client.
type Config struct {
	Provider        string
	APIKey          string
	Endpoint        string
	Model           string
	ProjectID       string
	Location        string
	CredentialsFile string
	Timeout         time.Duration
	Temperature     float32
	MaxOutputTokens int32
	HTTPClient      *http.Client
	Logger          *zap.Logger
}

// NewClient builds a Client for the configured provider.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = defaultModel
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = defaultTemperature
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = defaultMaxOutputTokens
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderGemini:
		if strings.TrimSpace(cfg.APIKey) == "" {
			return nil, errors.New("inference: api key required for gemini provider")
		}
		endpoint := strings.TrimSpace(cfg.Endpoint)
		if endpoint == "" {
			endpoint = defaultGeminiEndpoint
		}
		httpClient := cfg.HTTPClient
		if httpClient == nil {
			httpClient = &http.Client{}
		}
		return newClient(&geminiGenerator{
			httpClient:      httpClient,
			endpoint:        endpoint,
			model:           cfg.Model,
			apiKey:          cfg.APIKey,
			temperature:     cfg.Temperature,
			maxOutputTokens: cfg.MaxOutputTokens,
		}, cfg.Timeout, cfg.Logger), nil
	case ProviderVertex:
		if strings.TrimSpace(cfg.ProjectID) == "" {
			return nil, errors.New("inference: project id required for vertex provider")
		}
		generator, err := newVertexGenerator(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return newClient(generator, cfg.Timeout, cfg.Logger), nil
	default:
		return nil, fmt.Errorf("inference: unsupported provider %q", cfg.Provider)
	}
}
