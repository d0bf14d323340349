package llm

import (
	"context"
	"strings"
	"time"
)

const (
	claudeBaseURL    = "https://api.anthropic.com"
	claudeModel      = "claude-sonnet-4-20250514"
	anthropicVersion = "2023-06-01"
)

// ClaudeProvider calls Anthropic's Messages API.
type ClaudeProvider struct {
	api   endpoint
	model string
}

type ClaudeConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

func NewClaudeProvider(cfg ClaudeConfig) *ClaudeProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = claudeBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = claudeModel
	}
	return &ClaudeProvider{
		api: newEndpoint("claude", cfg.BaseURL, cfg.Timeout, map[string]string{
			"x-api-key":         cfg.APIKey,
			"anthropic-version": anthropicVersion,
		}),
		model: cfg.Model,
	}
}

func (p *ClaudeProvider) Name() string { return "claude" }

// chatMessage is the role/content pair both providers speak.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesRequest struct {
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	System      string        `json:"system,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
	Messages    []chatMessage `json:"messages"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (p *ClaudeProvider) Generate(ctx context.Context, prompt Prompt) (Completion, error) {
	var resp messagesResponse
	if err := p.api.post(ctx, "/v1/messages", p.messages(prompt), &resp); err != nil {
		return Completion{}, err
	}
	return resp.completion(), nil
}

// messages carries the persona in the top-level system field; the brief is
// the only turn.
func (p *ClaudeProvider) messages(prompt Prompt) messagesRequest {
	return messagesRequest{
		Model:       prompt.model(p.model),
		MaxTokens:   prompt.maxTokens(1024),
		System:      prompt.System,
		Temperature: prompt.Temperature,
		Messages:    []chatMessage{{Role: "user", Content: prompt.User}},
	}
}

func (r messagesResponse) completion() Completion {
	var text strings.Builder
	for _, block := range r.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return Completion{
		Text:         text.String(),
		StopReason:   r.StopReason,
		InputTokens:  r.Usage.InputTokens,
		OutputTokens: r.Usage.OutputTokens,
	}
}
