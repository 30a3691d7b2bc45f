package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/rivaleye/rivaleye/internal/monitor"
)

// LLMConfig configures the chat completion client.
type LLMConfig struct {
	Endpoint string
	Model    string
	APIKey   string
	Timeout  time.Duration
}

// LLMClient calls an OpenAI compatible chat completions endpoint and decodes
// the reply into a structured record. Calls run behind a circuit breaker so a
// degraded model endpoint trips fast instead of burning the batch budget on
// timeouts.
type LLMClient struct {
	cfg    LLMConfig
	http   *http.Client
	cb     *gobreaker.CircuitBreaker
	logger *zap.Logger
}

// NewLLMClient builds an LLMClient.
func NewLLMClient(cfg LLMConfig, logger *zap.Logger) *LLMClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ExtractionLLM",
		MaxRequests: 2,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 3
		},
	})
	return &LLMClient{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		cb:     cb,
		logger: logger.Named("llm"),
	}
}

const systemPrompt = "You extract structured competitor data from web page content. " +
	"Reply with a single JSON object of the shape " +
	`{"prices":[{"item":"","price":""}],"promotions":[{"title":"","description":""}],"menu_items":[{"name":"","price":"","description":""}]}` +
	". Use empty arrays for categories with nothing to report. No prose, no markdown."

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Extract asks the model for a structured record of the given page content.
// industry, when known, narrows the prompt so the model reads the page with
// the right vocabulary.
func (c *LLMClient) Extract(ctx context.Context, content, industry string) (monitor.ExtractedData, error) {
	userPrompt := "Extract all prices, promotions and menu items from this page content."
	if industry != "" {
		userPrompt = fmt.Sprintf("This page belongs to a business in the %q industry. %s", industry, userPrompt)
	}
	userPrompt += "\n\n" + content

	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature:    0.1,
		ResponseFormat: &responseFormat{Type: "json_object"},
	})
	if err != nil {
		return monitor.ExtractedData{}, fmt.Errorf("marshal chat request: %w", err)
	}

	var raw string
	err = retry.Do(
		func() error {
			res, err := c.cb.Execute(func() (interface{}, error) {
				return c.complete(ctx, body)
			})
			if err != nil {
				return err
			}
			raw = res.(string)
			return nil
		},
		retry.Attempts(3),
		retry.Context(ctx),
		retry.DelayType(retry.BackOffDelay),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Warn("retrying chat completion", zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)
	if err != nil {
		return monitor.ExtractedData{}, err
	}

	return decodeRecord(raw)
}

func (c *LLMClient) complete(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat completion request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read chat response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chat completion status %d: %s", resp.StatusCode, truncateForLog(payload))
	}

	var decoded chatResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("chat response has no choices")
	}
	return decoded.Choices[0].Message.Content, nil
}

// decodeRecord strictly parses model output into the three known record
// lists. Markdown fencing is tolerated; unknown top-level fields are not.
func decodeRecord(raw string) (monitor.ExtractedData, error) {
	cleaned := stripFences(raw)
	dec := json.NewDecoder(strings.NewReader(cleaned))
	dec.DisallowUnknownFields()

	var data monitor.ExtractedData
	if err := dec.Decode(&data); err != nil {
		return monitor.ExtractedData{}, fmt.Errorf("decode extraction record: %w", err)
	}
	data.Canonicalize()
	return data, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func truncateForLog(b []byte) string {
	const max = 256
	if len(b) <= max {
		return string(b)
	}
	return string(b[:max]) + "..."
}
