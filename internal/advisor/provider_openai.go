package advisor

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// Default endpoints and models for the OpenAI-compatible providers.
const (
	deepseekBaseURL      = "https://api.deepseek.com/v1"
	deepseekDefaultModel = "deepseek-chat"

	groqBaseURL      = "https://api.groq.com/openai/v1"
	groqDefaultModel = "llama-3.3-70b-versatile"

	openaiDefaultModel = "gpt-4o-mini"
)

// OpenAICompatible talks to any chat-completions API that speaks the
// OpenAI wire format (DeepSeek, Groq, OpenAI itself) through go-openai
// with a custom base URL.
type OpenAICompatible struct {
	name   string
	model  string
	client *openai.Client
}

var _ Provider = (*OpenAICompatible)(nil)

// NewOpenAICompatible builds a provider against the given endpoint.
// An empty baseURL means the OpenAI default.
func NewOpenAICompatible(name, apiKey, baseURL, model string) *OpenAICompatible {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAICompatible{
		name:   name,
		model:  model,
		client: openai.NewClientWithConfig(cfg),
	}
}

// NewDeepSeek builds the DeepSeek provider. Empty baseURL/model fall
// back to the service defaults.
func NewDeepSeek(apiKey, baseURL, model string) *OpenAICompatible {
	if baseURL == "" {
		baseURL = deepseekBaseURL
	}
	if model == "" {
		model = deepseekDefaultModel
	}
	return NewOpenAICompatible("deepseek", apiKey, baseURL, model)
}

// NewGroq builds the Groq provider.
func NewGroq(apiKey, baseURL, model string) *OpenAICompatible {
	if baseURL == "" {
		baseURL = groqBaseURL
	}
	if model == "" {
		model = groqDefaultModel
	}
	return NewOpenAICompatible("groq", apiKey, baseURL, model)
}

// NewOpenAI builds the OpenAI provider.
func NewOpenAI(apiKey, baseURL, model string) *OpenAICompatible {
	if model == "" {
		model = openaiDefaultModel
	}
	return NewOpenAICompatible("openai", apiKey, baseURL, model)
}

// Name implements Provider.
func (p *OpenAICompatible) Name() string { return p.name }

// Complete implements Provider.
func (p *OpenAICompatible) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.model,
		Temperature: chatTemperature,
		MaxTokens:   maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("%s chat completion: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s returned no choices", p.name)
	}
	return resp.Choices[0].Message.Content, nil
}
