package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/regbench/internal/llm"
	"github.com/joseph-ayodele/regbench/internal/retry"
)

// Ask implements llm.Oracle using chat/completions.
func (c *Client) Ask(ctx context.Context, req llm.Request) (string, error) {
	rid := uuid.New().String()
	start := time.Now()
	model := req.Model
	if model == "" {
		model = c.cfg.Model
	}

	c.logger.Info("llm.ask.start",
		"req_id", rid,
		"provider", "openai",
		"model", model,
		"purpose", req.Purpose,
		"prompt_len", len(req.Prompt),
		"json_mode", req.JSONMode,
	)

	body := map[string]any{
		"model": model,
		"messages": []map[string]any{
			{"role": "user", "content": req.Prompt},
		},
	}
	if !isReasoningModel(model) {
		body["temperature"] = c.cfg.Temperature
	}
	if req.JSONMode {
		body["response_format"] = map[string]any{"type": "json_object"}
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}

	raw, err := retry.DoWithResult(ctx, c.cfg.Retry, func() ([]byte, error) {
		b, _, err := llm.SendJSON(ctx, c.http, endpoint, body, headers, c.logger)
		if err == nil {
			return b, nil
		}
		var se *llm.StatusError
		if errors.As(err, &se) && !se.Temporary() {
			return nil, retry.Permanent(err)
		}
		c.logger.Warn("llm.ask.retryable_error", "req_id", rid, "error", err)
		return nil, err
	})
	if err != nil {
		c.logger.Error("llm.ask.http_error",
			"req_id", rid, "purpose", req.Purpose, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", fmt.Errorf("openai: %w", err)
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		c.logger.Error("llm.ask.decode_error",
			"req_id", rid, "error", err, "raw_bytes", len(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", fmt.Errorf("decode openai response: %w", err)
	}
	if len(cc.Choices) == 0 {
		c.logger.Error("llm.ask.no_choices",
			"req_id", rid, "raw", string(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", fmt.Errorf("no choices in openai response")
	}
	content := strings.TrimSpace(cc.Choices[0].Message.Content)

	c.logger.Info("llm.ask.ok",
		"req_id", rid,
		"purpose", req.Purpose,
		"finish_reason", cc.Choices[0].FinishReason,
		"content_len", len(content),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return content, nil
}

// reasoning models reject a temperature other than the default
func isReasoningModel(model string) bool {
	m := strings.ToLower(model)
	return strings.HasPrefix(m, "o1") || strings.HasPrefix(m, "o3") || strings.HasPrefix(m, "o4") || strings.HasPrefix(m, "gpt-5")
}
