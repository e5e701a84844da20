// pkg/ai/gemini.go

// Package ai wraps the Gemini API for plain-text and schema-constrained JSON
// generation.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"quiz-battle/pkg/logger"
)

const DefaultModel = "gemini-2.5-flash-lite"

// ErrNotConfigured is returned by every call when no API key was provided.
var ErrNotConfigured = errors.New("missing GEMINI_API_KEY in environment")

// ErrEmptyResponse means the model answered without any text.
var ErrEmptyResponse = errors.New("empty response from model")

type Config struct {
	APIKey string
	Model  string
}

// Client talks to the Gemini API. The underlying connection is created on
// first use, so a server without a key still starts and only AI calls fail.
type Client struct {
	cfg Config

	once   sync.Once
	client *genai.Client
	err    error
}

func NewClient(cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	return &Client{cfg: cfg}
}

func (c *Client) Configured() bool {
	return c.cfg.APIKey != ""
}

func (c *Client) connect(ctx context.Context) (*genai.Client, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	c.once.Do(func() {
		c.client, c.err = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  c.cfg.APIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if c.err != nil {
			logger.Error("create gemini client", zap.Error(c.err))
		}
	})
	return c.client, c.err
}

// GenerateText returns the model's free-form answer to prompt.
func (c *Client) GenerateText(ctx context.Context, prompt string) (string, error) {
	return c.generate(ctx, prompt, nil)
}

// GenerateJSON asks for a JSON document conforming to schema and returns it
// unparsed.
func (c *Client) GenerateJSON(ctx context.Context, prompt string, schema *Schema) (string, error) {
	return c.generate(ctx, prompt, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   schema.toGenai(),
	})
}

func (c *Client) generate(ctx context.Context, prompt string, config *genai.GenerateContentConfig) (string, error) {
	client, err := c.connect(ctx)
	if err != nil {
		return "", err
	}

	resp, err := client.Models.GenerateContent(ctx, c.cfg.Model, genai.Text(prompt), config)
	if err != nil {
		logger.Warn("gemini request failed", zap.String("model", c.cfg.Model), zap.Error(err))
		return "", fmt.Errorf("generate content: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", ErrEmptyResponse
	}
	logger.Debug("gemini response", zap.String("model", c.cfg.Model), zap.Int("bytes", len(text)))
	return text, nil
}
