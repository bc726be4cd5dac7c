// Package gemini implements llm.Oracle on Google's Gemini API.
package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/joseph-ayodele/regbench/internal/llm"
	"github.com/joseph-ayodele/regbench/internal/retry"
)

// Config for the Gemini client.
type Config struct {
	APIKey      string // if empty, falls back to env GEMINI_API_KEY
	Model       string // default gemini-2.5-flash
	Temperature float32
	Retry       retry.Config
}

// Client wraps a genai client.
type Client struct {
	cfg    Config
	client *genai.Client
	logger *slog.Logger
}

func NewClient(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &Client{cfg: cfg, client: client, logger: logger}, nil
}

// Model returns the default model name.
func (c *Client) Model() string { return c.cfg.Model }

// Ask implements llm.Oracle.
func (c *Client) Ask(ctx context.Context, req llm.Request) (string, error) {
	rid := uuid.New().String()
	start := time.Now()
	model := req.Model
	if model == "" || !strings.HasPrefix(model, "gemini") {
		model = c.cfg.Model
	}

	c.logger.Info("llm.ask.start",
		"req_id", rid,
		"provider", "gemini",
		"model", model,
		"purpose", req.Purpose,
		"prompt_len", len(req.Prompt),
	)

	gc := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(c.cfg.Temperature),
	}
	if req.JSONMode {
		gc.ResponseMIMEType = "application/json"
	}

	resp, err := retry.DoWithResult(ctx, c.cfg.Retry, func() (*genai.GenerateContentResponse, error) {
		return c.client.Models.GenerateContent(ctx, model, genai.Text(req.Prompt), gc)
	})
	if err != nil {
		c.logger.Error("llm.ask.error",
			"req_id", rid, "purpose", req.Purpose, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", fmt.Errorf("gemini: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("gemini: empty response")
	}

	c.logger.Info("llm.ask.ok",
		"req_id", rid,
		"purpose", req.Purpose,
		"content_len", len(text),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return text, nil
}
