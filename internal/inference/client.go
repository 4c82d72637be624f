package inference

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultMIMEType = "image/jpeg"
	defaultTimeout  = 60 * time.Second
)

// Image is an encoded meal photo.
type Image struct {
	Data     []byte
	MIMEType string
}

// Analyzer estimates nutrition for a meal photo or a food name.
type Analyzer interface {
	AnalyzeImage(ctx context.Context, image Image, location *LocationHint) (Estimate, error)
	AnalyzeName(ctx context.Context, foodName string, location *LocationHint) (Estimate, error)
}

// textGenerator sends a prompt with an optional image and returns the first
// candidate's text.
type textGenerator interface {
	Generate(ctx context.Context, prompt string, image *Image) (string, error)
	Close() error
}

// Client turns provider replies into Estimates.
type Client struct {
	generator textGenerator
	timeout   time.Duration
	logger    *zap.Logger
}

func newClient(generator textGenerator, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{generator: generator, timeout: timeout, logger: logger}
}

// AnalyzeImage estimates the nutrition of the meal in the image.
func (c *Client) AnalyzeImage(ctx context.Context, image Image, location *LocationHint) (Estimate, error) {
	if len(image.Data) == 0 {
		return Estimate{}, fmt.Errorf("%w: empty image", ErrInvalidInput)
	}
	if strings.TrimSpace(image.MIMEType) == "" {
		image.MIMEType = defaultMIMEType
	}
	return c.analyze(ctx, "inference.analyze_image", imagePrompt(location), &image)
}

// AnalyzeName estimates the nutrition of one serving of the named food.
func (c *Client) AnalyzeName(ctx context.Context, foodName string, location *LocationHint) (Estimate, error) {
	trimmed := strings.TrimSpace(foodName)
	if trimmed == "" {
		return Estimate{}, fmt.Errorf("%w: empty food name", ErrInvalidInput)
	}
	estimate, err := c.analyze(ctx, "inference.analyze_name", namePrompt(trimmed, location), nil)
	if err != nil {
		return Estimate{}, err
	}
	if estimate.FoodName == "" {
		estimate.FoodName = trimmed
	}
	return estimate, nil
}

// Close releases provider resources.
func (c *Client) Close() error {
	if c == nil || c.generator == nil {
		return nil
	}
	return c.generator.Close()
}

func (c *Client) analyze(ctx context.Context, operation, prompt string, image *Image) (Estimate, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	text, err := c.generator.Generate(callCtx, prompt, image)
	if err != nil {
		if !errors.Is(err, ErrRemoteCall) && !errors.Is(err, ErrEmptyResponse) {
			err = fmt.Errorf("%w: %v", ErrRemoteCall, err)
		}
		c.logger.Warn("inference request failed",
			zap.String("operation", operation),
			zap.String("reason", "remote_call_failed"),
			zap.Error(err))
		return Estimate{}, err
	}

	estimate, err := ParseEstimate(text)
	if err != nil {
		c.logger.Warn("inference reply unparseable",
			zap.String("operation", operation),
			zap.String("reason", "malformed_estimate"),
			zap.Int("reply_length", len(text)),
			zap.Error(err))
		return Estimate{}, err
	}
	return estimate, nil
}
