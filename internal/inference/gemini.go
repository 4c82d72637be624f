package inference

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const (
	defaultGeminiEndpoint = "https://generativelanguage.googleapis.com"
	maxReplyBytes         = 4 << 20
)

type geminiGenerator struct {
	httpClient      *http.Client
	endpoint        string
	model           string
	apiKey          string
	temperature     float32
	maxOutputTokens int32
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiGenerationConfig struct {
	Temperature     float32 `json:"temperature"`
	MaxOutputTokens int32   `json:"maxOutputTokens"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
		Details []struct {
			Reason string `json:"reason"`
		} `json:"details"`
	} `json:"error"`
}

func (g *geminiGenerator) Generate(ctx context.Context, prompt string, image *Image) (string, error) {
	parts := []geminiPart{{Text: prompt}}
	if image != nil {
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{
			MIMEType: image.MIMEType,
			Data:     base64.StdEncoding.EncodeToString(image.Data),
		}})
	}
	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Parts: parts}},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     g.temperature,
			MaxOutputTokens: g.maxOutputTokens,
		},
	})
	if err != nil {
		return "", err
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, g.requestURL(), bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := g.httpClient.Do(request)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRemoteCall, err)
	}
	defer response.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(response.Body, maxReplyBytes))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRemoteCall, err)
	}

	var decoded geminiResponse
	decodeErr := json.Unmarshal(raw, &decoded)

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		message := fmt.Sprintf("status %d", response.StatusCode)
		if decodeErr == nil && decoded.Error != nil {
			reasons := make([]string, 0, len(decoded.Error.Details)+1)
			reasons = append(reasons, decoded.Error.Message)
			for _, detail := range decoded.Error.Details {
				reasons = append(reasons, detail.Reason)
			}
			message = strings.Join(reasons, " ")
		}
		return "", fmt.Errorf("%w: %s", classifyProviderMessage(message), message)
	}
	if decodeErr != nil {
		return "", fmt.Errorf("%w: %v", ErrRemoteCall, decodeErr)
	}
	if len(decoded.Candidates) == 0 || len(decoded.Candidates[0].Content.Parts) == 0 {
		return "", ErrEmptyResponse
	}
	return decoded.Candidates[0].Content.Parts[0].Text, nil
}

func (g *geminiGenerator) Close() error {
	return nil
}

func (g *geminiGenerator) requestURL() string {
	return fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		strings.TrimRight(g.endpoint, "/"),
		url.PathEscape(g.model),
		url.QueryEscape(g.apiKey))
}
