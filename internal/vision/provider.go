package vision

import (
	"context"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Client is the minimal interface needed to call a vision-capable chat model.
// It mirrors the CreateChatCompletion method so that any OpenAI-compatible
// backend (LM Studio, vLLM, the hosted API) can be plugged in, and tests can
// substitute a stub.
type Client interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// NewOpenAICompatClient builds a client against an OpenAI-compatible base URL.
// baseURL is the server root (e.g. "http://localhost:22227"); the /v1 suffix
// is appended when missing.
func NewOpenAICompatClient(baseURL, apiKey string) Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		if !strings.HasSuffix(baseURL, "/v1") {
			baseURL = strings.TrimRight(baseURL, "/") + "/v1"
		}
		cfg.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(cfg)
}
