package vision

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/diagram-analyzer/backend/internal/models"
)

// Analyzer sends a rendered diagram image to a vision-capable chat model and
// converts the reply into the shared analysis payload. It is the fallback
// path for inputs the structural extractors decline.
type Analyzer struct {
	client      Client
	model       string
	prompt      string
	maxTokens   int
	temperature float32
	topP        float32
	log         zerolog.Logger
}

// Options configures an Analyzer.
type Options struct {
	Model       string
	Prompt      string
	MaxTokens   int
	Temperature float32
	TopP        float32
}

func NewAnalyzer(client Client, opts Options, log zerolog.Logger) *Analyzer {
	prompt := opts.Prompt
	if prompt == "" {
		prompt = DefaultPrompt
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 10000
	}
	return &Analyzer{
		client:      client,
		model:       opts.Model,
		prompt:      prompt,
		maxTokens:   maxTokens,
		temperature: opts.Temperature,
		topP:        opts.TopP,
		log:         log.With().Str("component", "vision").Logger(),
	}
}

// Analyze sends the PNG image plus the prompt and returns the parsed result.
// extractedText, when non-empty, is appended as a verbatim reference the
// model is told to copy action text from.
func (a *Analyzer) Analyze(ctx context.Context, pngBytes []byte, extractedText string) (*models.AnalyzeResult, error) {
	if a.client == nil {
		return nil, errors.New("vision model backend is not configured")
	}

	prompt := a.prompt
	if extractedText != "" {
		prompt += "\n\nИз файла извлечён следующий текст (используй его как ТОЧНЫЙ справочник" +
			" — копируй эти строки дословно в поле action):\n---\n" + extractedText + "\n---"
	}

	imageURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes)
	req := openai.ChatCompletionRequest{
		Model:       a.model,
		Temperature: a.temperature,
		TopP:        a.topP,
		MaxTokens:   a.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type:     openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{URL: imageURL},
					},
					{
						Type: openai.ChatMessagePartTypeText,
						Text: prompt,
					},
				},
			},
		},
	}

	resp, err := a.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("model returned no choices")
	}
	content := resp.Choices[0].Message.Content

	a.log.Debug().Int("output_len", len(content)).Msg("model reply received")
	return ToResult(content), nil
}
