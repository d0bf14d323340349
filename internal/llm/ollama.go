package llm

import (
	"context"
	"strings"
	"time"
)

const (
	ollamaBaseURL = "http://localhost:11434"
	ollamaModel   = "llama3.2"
)

// OllamaProvider calls a local Ollama server's chat API.
type OllamaProvider struct {
	api   endpoint
	model string
}

type OllamaConfig struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

func NewOllamaProvider(cfg OllamaConfig) *OllamaProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = ollamaBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = ollamaModel
	}
	return &OllamaProvider{
		api:   newEndpoint("ollama", cfg.BaseURL, cfg.Timeout, nil),
		model: cfg.Model,
	}
}

func (p *OllamaProvider) Name() string { return "ollama" }

// Model is the model used when a prompt names none.
func (p *OllamaProvider) Model() string { return p.model }

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  *chatOptions  `json:"options,omitempty"`
}

type chatOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type chatResponse struct {
	Message         chatMessage `json:"message"`
	DoneReason      string      `json:"done_reason"`
	EvalCount       int         `json:"eval_count"`
	PromptEvalCount int         `json:"prompt_eval_count"`
}

func (p *OllamaProvider) Generate(ctx context.Context, prompt Prompt) (Completion, error) {
	var resp chatResponse
	if err := p.api.post(ctx, "/api/chat", p.chat(prompt), &resp); err != nil {
		return Completion{}, err
	}

	reason := resp.DoneReason
	if reason == "" {
		reason = "stop"
	}
	return Completion{
		Text:         resp.Message.Content,
		StopReason:   reason,
		InputTokens:  resp.PromptEvalCount,
		OutputTokens: resp.EvalCount,
	}, nil
}

// chat puts the persona first as a system turn.
func (p *OllamaProvider) chat(prompt Prompt) chatRequest {
	messages := make([]chatMessage, 0, 2)
	if prompt.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: prompt.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt.User})

	var opts *chatOptions
	if prompt.Temperature > 0 || prompt.MaxTokens > 0 {
		opts = &chatOptions{Temperature: prompt.Temperature, NumPredict: prompt.MaxTokens}
	}
	return chatRequest{Model: prompt.model(p.model), Messages: messages, Options: opts}
}

// Models lists the models pulled on the server.
func (p *OllamaProvider) Models(ctx context.Context) ([]string, error) {
	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := p.api.get(ctx, "/api/tags", &tags); err != nil {
		return nil, err
	}
	names := make([]string, len(tags.Models))
	for i, m := range tags.Models {
		names[i] = m.Name
	}
	return names, nil
}

// HasModel reports whether the configured model is pulled. A bare name
// matches any tag of it.
func (p *OllamaProvider) HasModel(ctx context.Context) (bool, error) {
	names, err := p.Models(ctx)
	if err != nil {
		return false, err
	}
	for _, name := range names {
		if name == p.model || strings.HasPrefix(name, p.model+":") {
			return true, nil
		}
	}
	return false, nil
}
