package responder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/teslashibe/go-callbridge/internal/httpc"
	"github.com/teslashibe/go-callbridge/pkg/session"
)

const providerChat = "chat"

// Chat answers utterances with an OpenAI-compatible chat completions API.
// Works with OpenAI, Ollama, vLLM, Groq and anything else speaking the
// same protocol.
type Chat struct {
	baseURL string
	apiKey  string
	config  *Config
	http    *http.Client
	history *history
	logger  *slog.Logger
}

// NewChat creates a Chat responder.
func NewChat(opts ...Option) (*Chat, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	return &Chat{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		config:  cfg,
		http:    httpc.NewClient(cfg.Timeout),
		history: newHistory(cfg.MaxHistory),
		logger:  cfg.Logger.With("component", "responder.chat", "model", cfg.Model),
	}, nil
}

// HandleUtterance asks the model for a reply and speaks it.
func (c *Chat) HandleUtterance(ctx context.Context, callID, text string, r session.Replier) {
	reply, err := c.Reply(ctx, callID, text)
	if err != nil {
		c.logger.Warn("chat failed", "call_id", callID, "error", err)
		return
	}
	say(ctx, c.logger, r, callID, reply)
}

// Reply returns the model's answer to text and records the exchange in the
// call's history.
func (c *Chat) Reply(ctx context.Context, callID, text string) (string, error) {
	start := time.Now()

	messages := make([]Message, 0, c.config.MaxHistory+2)
	if c.config.SystemPrompt != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: c.config.SystemPrompt})
	}
	messages = append(messages, c.history.get(callID)...)
	messages = append(messages, Message{Role: RoleUser, Content: text})

	payload := map[string]interface{}{
		"model":    c.config.Model,
		"messages": messages,
	}
	if c.config.MaxTokens > 0 {
		payload["max_tokens"] = c.config.MaxTokens
	}
	if c.config.Temperature > 0 {
		payload["temperature"] = c.config.Temperature
	}

	resp, err := c.post(ctx, "/chat/completions", payload)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", c.parseError(resp)
	}

	var result chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", WrapError(providerChat, fmt.Errorf("decode response: %w", err))
	}
	if len(result.Choices) == 0 {
		return "", WrapError(providerChat, ErrEmptyReply)
	}

	reply := strings.TrimSpace(result.Choices[0].Message.Content)
	if reply == "" {
		return "", WrapError(providerChat, ErrEmptyReply)
	}

	c.history.add(callID,
		Message{Role: RoleUser, Content: text},
		Message{Role: RoleAssistant, Content: reply},
	)

	c.logger.Debug("chat reply",
		"call_id", callID,
		"tokens", result.Usage.TotalTokens,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return reply, nil
}

// EndCall forgets the call's history.
func (c *Chat) EndCall(callID string) {
	c.history.drop(callID)
}

// History returns a copy of the call's remembered turns.
func (c *Chat) History(callID string) []Message {
	return c.history.get(callID)
}

func (c *Chat) post(ctx context.Context, path string, payload interface{}) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, WrapError(providerChat, fmt.Errorf("marshal payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, WrapError(providerChat, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	return c.doWithRetry(ctx, req, body)
}

func (c *Chat) doWithRetry(ctx context.Context, req *http.Request, body []byte) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.config.RetryDelay * time.Duration(attempt)):
			}
			req.Body = io.NopCloser(bytes.NewReader(body))
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = WrapError(providerChat, err)
			c.logger.Warn("request failed, retrying", "attempt", attempt+1, "error", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = c.parseError(resp)
			resp.Body.Close()
			c.logger.Warn("retrying request", "attempt", attempt+1, "status", resp.StatusCode)
			continue
		}

		return resp, nil
	}

	return nil, lastErr
}

func (c *Chat) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    string `json:"code"`
		} `json:"error"`
	}

	message := string(body)
	code := ""
	if json.Unmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
		code = errResp.Error.Code
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    message,
		Code:       code,
		Provider:   providerChat,
	}
}

type chatCompletionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}
