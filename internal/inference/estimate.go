package inference

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrRemoteCall indicates a transport failure or a non-success reply from the provider.
	ErrRemoteCall = errors.New("inference: remote call failed")
	// ErrEmptyResponse indicates that the provider returned no candidates.
	ErrEmptyResponse = errors.New("inference: no response generated")
	// ErrMalformedEstimate indicates that no estimate could be parsed from the reply text.
	ErrMalformedEstimate = errors.New("inference: could not parse nutrition data")
	// ErrInvalidAPIKey indicates that the provider rejected the credential.
	ErrInvalidAPIKey = fmt.Errorf("%w: invalid api key", ErrRemoteCall)
	// ErrQuotaExceeded indicates that the provider quota is exhausted.
	ErrQuotaExceeded = fmt.Errorf("%w: quota exceeded", ErrRemoteCall)
	// ErrModelNotFound indicates that the configured model is unknown to the provider.
	ErrModelNotFound = fmt.Errorf("%w: model not found", ErrRemoteCall)
	// ErrInvalidInput indicates an empty image or food name.
	ErrInvalidInput = errors.New("inference: invalid input")
)

// Estimate is the nutrition estimate parsed from a model reply.
type Estimate struct {
	FoodName    string  `json:"foodName"`
	Calories    int     `json:"calories"`
	Protein     float64 `json:"protein"`
	Carbs       float64 `json:"carbs"`
	Fat         float64 `json:"fat"`
	Fiber       float64 `json:"fiber"`
	ServingSize string  `json:"servingSize"`
	Confidence  float64 `json:"confidence"`
}

// ExtractJSON returns the span from the first '{' to the last '}' of text.
// When the text holds no such span the trimmed text is returned unchanged.
func ExtractJSON(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return strings.TrimSpace(text)
	}
	return text[start : end+1]
}

// ParseEstimate extracts and decodes an Estimate from free-form reply text.
func ParseEstimate(text string) (Estimate, error) {
	payload := ExtractJSON(text)
	if payload == "" {
		return Estimate{}, ErrMalformedEstimate
	}

	var raw rawEstimate
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return Estimate{}, fmt.Errorf("%w: %v", ErrMalformedEstimate, err)
	}

	return Estimate{
		FoodName:    strings.TrimSpace(raw.FoodName),
		Calories:    int(math.Round(float64(raw.Calories))),
		Protein:     float64(raw.Protein),
		Carbs:       float64(raw.Carbs),
		Fat:         float64(raw.Fat),
		Fiber:       float64(raw.Fiber),
		ServingSize: strings.TrimSpace(raw.ServingSize),
		Confidence:  math.Min(100, math.Max(0, float64(raw.Confidence))),
	}, nil
}

type rawEstimate struct {
	FoodName    string         `json:"foodName"`
	Calories    FlexibleNumber `json:"calories"`
	Protein     FlexibleNumber `json:"protein"`
	Carbs       FlexibleNumber `json:"carbs"`
	Fat         FlexibleNumber `json:"fat"`
	Fiber       FlexibleNumber `json:"fiber"`
	ServingSize string         `json:"servingSize"`
	Confidence  FlexibleNumber `json:"confidence"`
}

// FlexibleNumber accepts JSON numbers, numeric strings and null. Anything else
// decodes as zero. Model replies and client-submitted entries share it.
type FlexibleNumber float64

func (n *FlexibleNumber) UnmarshalJSON(data []byte) error {
	*n = 0
	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return nil
	}
	switch typed := value.(type) {
	case float64:
		*n = FlexibleNumber(finite(typed))
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(typed), 64)
		if err == nil {
			*n = FlexibleNumber(finite(parsed))
		}
	}
	return nil
}

func finite(value float64) float64 {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0
	}
	return value
}

// classifyProviderMessage maps provider error text onto the specific remote errors.
func classifyProviderMessage(message string) error {
	switch {
	case strings.Contains(message, "API_KEY_INVALID"):
		return ErrInvalidAPIKey
	case strings.Contains(message, "QUOTA_EXCEEDED"):
		return ErrQuotaExceeded
	case strings.Contains(message, "models/"):
		return ErrModelNotFound
	default:
		return ErrRemoteCall
	}
}
