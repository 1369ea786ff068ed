// Package inference provides two concrete bindings of the collab.Inference
// interface: HTTPClient, a hand-rolled OpenAI-compatible HTTP client adapted
// from the teacher codebase's internal/llm.Client (tiered credential
// resolution, thinking-block/fence stripping, logging of the system prompt
// truncated to 500 bytes and of the response token counts),
// and OpenAISDKClient (openaiclient.go), which wraps
// github.com/sashabaranov/go-openai for providers that need no custom tiering.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/kernel/cellruntime/internal/collab"
)

// HTTPClient is an OpenAI-compatible inference client resolved from tiered
// environment variables, exactly as the teacher's internal/llm.Client does.
type HTTPClient struct {
	baseURL        string
	apiKey         string
	model          string
	label          string
	enableThinking bool
	httpClient     *http.Client
}

// normalizeBaseURL strips trailing slashes and a trailing "/chat/completions"
// suffix from a raw base URL so the path is never doubled.
func normalizeBaseURL(raw string) string {
	s := strings.TrimRight(raw, "/")
	return strings.TrimSuffix(s, "/chat/completions")
}

// NewHTTPClient resolves a client from the shared environment variables:
// OPENAI_API_KEY, OPENAI_BASE_URL, OPENAI_MODEL.
func NewHTTPClient() *HTTPClient {
	return NewHTTPTier("")
}

// NewHTTPTier creates a client for a named tier (e.g. "PLANNER", "EXECUTOR").
// For each config key it first tries {prefix}_{KEY}; if unset it falls back
// to the shared OPENAI_{KEY}. An empty prefix is equivalent to NewHTTPClient().
func NewHTTPTier(prefix string) *HTTPClient {
	get := func(suffix, fallback string) string {
		if prefix != "" {
			if v := os.Getenv(prefix + "_" + suffix); v != "" {
				return v
			}
		}
		return os.Getenv(fallback)
	}
	enableThinking := prefix != "" && os.Getenv(prefix+"_ENABLE_THINKING") == "true"
	label := prefix
	if label == "" {
		label = "inference"
	}
	return &HTTPClient{
		baseURL:        normalizeBaseURL(get("BASE_URL", "OPENAI_BASE_URL")),
		apiKey:         get("API_KEY", "OPENAI_API_KEY"),
		model:          get("MODEL", "OPENAI_MODEL"),
		label:          label,
		enableThinking: enableThinking,
		httpClient:     &http.Client{Timeout: 120 * time.Second},
	}
}

type chatRequest struct {
	Model          string    `json:"model"`
	Messages       []chatMsg `json:"messages"`
	MaxTokens      int       `json:"max_tokens,omitempty"`
	Temperature    float64   `json:"temperature,omitempty"`
	Stop           []string  `json:"stop,omitempty"`
	EnableThinking bool      `json:"enable_thinking,omitempty"`
}

type chatMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Generate implements collab.Inference.
func (c *HTTPClient) Generate(ctx context.Context, system string, messages []collab.InferenceMessage, params collab.InferenceParams) (collab.InferenceResult, error) {
	log.Printf("[%s] system prompt: %s", c.label, truncate(system, 500))

	msgs := make([]chatMsg, 0, len(messages)+1)
	msgs = append(msgs, chatMsg{Role: "system", Content: system})
	for _, m := range messages {
		msgs = append(msgs, chatMsg{Role: m.Role, Content: m.Content})
	}

	payload := chatRequest{
		Model:          c.model,
		Messages:       msgs,
		MaxTokens:      params.MaxTokens,
		Temperature:    params.Temperature,
		Stop:           params.Stop,
		EnableThinking: c.enableThinking,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return collab.InferenceResult{}, fmt.Errorf("inference: marshal request: %w", err)
	}

	url := c.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return collab.InferenceResult{}, fmt.Errorf("inference: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return collab.InferenceResult{}, fmt.Errorf("inference: http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return collab.InferenceResult{}, fmt.Errorf("inference: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return collab.InferenceResult{}, fmt.Errorf("inference: HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return collab.InferenceResult{}, fmt.Errorf("inference: unmarshal response: %w", err)
	}
	if chatResp.Error != nil {
		return collab.InferenceResult{}, fmt.Errorf("inference: API error: %s", chatResp.Error.Message)
	}
	if len(chatResp.Choices) == 0 {
		return collab.InferenceResult{}, fmt.Errorf("inference: no choices in response")
	}

	content := chatResp.Choices[0].Message.Content
	log.Printf("[%s] response (tokens: prompt=%d completion=%d)", c.label, chatResp.Usage.PromptTokens, chatResp.Usage.CompletionTokens)
	return collab.InferenceResult{
		Text:       StripFences(content),
		TokensUsed: chatResp.Usage.TotalTokens,
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// StripThinkBlocks removes all <think>...</think> blocks from s. Reasoning
// models emit these before or between structured-output payloads.
func StripThinkBlocks(s string) string {
	for {
		start := strings.Index(s, "<think>")
		if start == -1 {
			break
		}
		end := strings.Index(s[start:], "</think>")
		if end == -1 {
			s = s[:start]
			break
		}
		s = s[:start] + s[start+end+len("</think>"):]
	}
	return strings.TrimSpace(s)
}

// StripFences removes markdown code fences and <think> blocks from LLM output.
func StripFences(s string) string {
	s = StripThinkBlocks(strings.TrimSpace(s))
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		}
		if i := strings.LastIndex(s, "```"); i != -1 {
			s = s[:i]
		}
	}
	return strings.TrimSpace(s)
}
