package responder

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/teslashibe/go-callbridge/pkg/session"
)

const providerGemini = "gemini"

// Gemini answers utterances with Google Gemini.
type Gemini struct {
	client  *genai.Client
	config  *Config
	history *history
	logger  *slog.Logger
}

// NewGemini creates a Gemini responder. BaseURL is only used when set
// explicitly; the SDK default endpoint applies otherwise.
func NewGemini(ctx context.Context, opts ...Option) (*Gemini, error) {
	cfg := DefaultConfig()
	cfg.BaseURL = ""
	cfg.Model = "gemini-2.0-flash"
	cfg.Apply(opts...)

	if cfg.APIKey == "" {
		return nil, WrapError(providerGemini, ErrNoAPIKey)
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, WrapError(providerGemini, err)
	}

	return &Gemini{
		client:  client,
		config:  cfg,
		history: newHistory(cfg.MaxHistory),
		logger:  cfg.Logger.With("component", "responder.gemini", "model", cfg.Model),
	}, nil
}

// HandleUtterance asks Gemini for a reply and speaks it.
func (g *Gemini) HandleUtterance(ctx context.Context, callID, text string, r session.Replier) {
	reply, err := g.Reply(ctx, callID, text)
	if err != nil {
		g.logger.Warn("gemini failed", "call_id", callID, "error", err)
		return
	}
	say(ctx, g.logger, r, callID, reply)
}

// Reply returns Gemini's answer to text and records the exchange.
func (g *Gemini) Reply(ctx context.Context, callID, text string) (string, error) {
	start := time.Now()

	var contents []*genai.Content
	for _, m := range g.history.get(callID) {
		role := genai.Role(genai.RoleUser)
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}
	contents = append(contents, genai.NewContentFromText(text, genai.RoleUser))

	gc := &genai.GenerateContentConfig{}
	if g.config.SystemPrompt != "" {
		gc.SystemInstruction = genai.NewContentFromText(g.config.SystemPrompt, genai.RoleUser)
	}
	if g.config.MaxTokens > 0 {
		gc.MaxOutputTokens = int32(g.config.MaxTokens)
	}
	if g.config.Temperature > 0 {
		gc.Temperature = genai.Ptr(float32(g.config.Temperature))
	}

	if g.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.config.Timeout)
		defer cancel()
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.config.Model, contents, gc)
	if err != nil {
		return "", WrapError(providerGemini, err)
	}

	reply := strings.TrimSpace(resp.Text())
	if reply == "" {
		return "", WrapError(providerGemini, ErrEmptyReply)
	}

	g.history.add(callID,
		Message{Role: RoleUser, Content: text},
		Message{Role: RoleAssistant, Content: reply},
	)
	g.logger.Debug("gemini reply", "call_id", callID, "latency_ms", time.Since(start).Milliseconds())
	return reply, nil
}

// EndCall forgets the call's history.
func (g *Gemini) EndCall(callID string) {
	g.history.drop(callID)
}
